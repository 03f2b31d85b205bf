package router

import "github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

// stationKeywords 工位类型关键字表
// 顺序即 sequence 的分配顺序（烤档最先，甜品最后）
// 只读共享，禁止运行时修改
var stationKeywords = []struct {
	Type     models.StationType
	Keywords []string
}{
	{
		Type: models.StationTypeGrill,
		Keywords: []string{
			"steak", "burger", "chicken", "beef", "pork", "lamb",
			"grilled", "bbq", "ribs", "brisket", "patty",
		},
	},
	{
		Type: models.StationTypeFryer,
		Keywords: []string{
			"fries", "fried", "wings", "crispy", "tempura",
			"nuggets", "calamari", "tots",
		},
	},
	{
		Type: models.StationTypeCold,
		Keywords: []string{
			"salad", "greens", "lettuce", "coleslaw", "caesar",
			"caprese", "ceviche",
		},
	},
	{
		Type: models.StationTypePrep,
		Keywords: []string{
			"soup", "sauce", "mashed", "rice", "pasta", "risotto",
			"stew", "gravy",
		},
	},
	{
		Type: models.StationTypeDessert,
		Keywords: []string{
			"cake", "ice cream", "chocolate", "pie", "brownie",
			"cheesecake", "sundae", "pudding",
		},
	},
}
