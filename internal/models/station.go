package models

// StationType 备餐工位类型
type StationType string

const (
	StationTypeGrill   StationType = "grill"
	StationTypeFryer   StationType = "fryer"
	StationTypeCold    StationType = "cold"  // 沙拉/冷菜
	StationTypePrep    StationType = "prep"
	StationTypeDessert StationType = "dessert"
	StationTypeBar     StationType = "bar"
	StationTypeExpo    StationType = "expo"
)

// Station 物理备餐工位（由配置定义，引擎只读）
type Station struct {
	ID       string      `json:"id" yaml:"id"`
	Type     StationType `json:"type" yaml:"type"`
	Name     string      `json:"name" yaml:"name"`
	IsActive bool        `json:"is_active" yaml:"is_active"`
	Position int         `json:"position" yaml:"position"`
	Color    string      `json:"color" yaml:"color"`
}
