package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"gopkg.in/yaml.v3"
)

// Catalog 工位目录（只读共享，任意数量会话并发读取安全）
type Catalog struct {
	stations []models.Station

	// 各工位类型的超时阈值（秒），未配置的类型使用 DefaultOverdueSecs
	overdueThresholds map[models.StationType]int64
}

// DefaultOverdueSecs 默认超时阈值（秒）
const DefaultOverdueSecs int64 = 600

// catalogFile 工位目录配置文件结构
type catalogFile struct {
	Stations          []models.Station `yaml:"stations"`
	OverdueThresholds map[string]int64 `yaml:"overdue_thresholds"`
}

// New 从工位列表创建目录（按 position 排序）
func New(stations []models.Station, overdueThresholds map[models.StationType]int64) *Catalog {
	sorted := append([]models.Station(nil), stations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})
	if overdueThresholds == nil {
		overdueThresholds = map[models.StationType]int64{}
	}
	return &Catalog{
		stations:          sorted,
		overdueThresholds: overdueThresholds,
	}
}

// LoadFromFile 从YAML文件加载工位目录
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	if len(file.Stations) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no stations", path)
	}

	thresholds := make(map[models.StationType]int64, len(file.OverdueThresholds))
	for k, v := range file.OverdueThresholds {
		if v <= 0 {
			return nil, fmt.Errorf("invalid overdue threshold for %s: %d", k, v)
		}
		thresholds[models.StationType(k)] = v
	}

	return New(file.Stations, thresholds), nil
}

// Default 内置默认目录（每种工位类型各一个，全部激活）
func Default() *Catalog {
	return New([]models.Station{
		{ID: "grill-1", Type: models.StationTypeGrill, Name: "Grill", IsActive: true, Position: 1, Color: "#e25822"},
		{ID: "fryer-1", Type: models.StationTypeFryer, Name: "Fryer", IsActive: true, Position: 2, Color: "#f2a33c"},
		{ID: "cold-1", Type: models.StationTypeCold, Name: "Salad / Cold", IsActive: true, Position: 3, Color: "#5cb85c"},
		{ID: "prep-1", Type: models.StationTypePrep, Name: "Prep", IsActive: true, Position: 4, Color: "#5bc0de"},
		{ID: "dessert-1", Type: models.StationTypeDessert, Name: "Dessert", IsActive: true, Position: 5, Color: "#d9538c"},
		{ID: "bar-1", Type: models.StationTypeBar, Name: "Bar", IsActive: true, Position: 6, Color: "#8e6bbf"},
		{ID: "expo-1", Type: models.StationTypeExpo, Name: "Expo", IsActive: true, Position: 7, Color: "#777777"},
	}, nil)
}

// Stations 返回全部工位（按 position 排序的副本）
func (c *Catalog) Stations() []models.Station {
	return append([]models.Station(nil), c.stations...)
}

// Get 按ID查找工位
func (c *Catalog) Get(id string) (*models.Station, bool) {
	for i := range c.stations {
		if c.stations[i].ID == id {
			s := c.stations[i]
			return &s, true
		}
	}
	return nil, false
}

// ActiveByType 返回指定类型中position最小的激活工位
func (c *Catalog) ActiveByType(t models.StationType) (*models.Station, bool) {
	for i := range c.stations {
		if c.stations[i].Type == t && c.stations[i].IsActive {
			s := c.stations[i]
			return &s, true
		}
	}
	return nil, false
}

// FirstActive 返回position最小的激活工位
func (c *Catalog) FirstActive() (*models.Station, bool) {
	for i := range c.stations {
		if c.stations[i].IsActive {
			s := c.stations[i]
			return &s, true
		}
	}
	return nil, false
}

// HasActive 是否存在激活工位
func (c *Catalog) HasActive() bool {
	_, ok := c.FirstActive()
	return ok
}

// OverdueThreshold 指定工位类型的超时阈值（秒）
func (c *Catalog) OverdueThreshold(t models.StationType) int64 {
	if v, ok := c.overdueThresholds[t]; ok {
		return v
	}
	return DefaultOverdueSecs
}
