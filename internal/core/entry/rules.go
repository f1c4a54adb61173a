package entry

// PortionRule は家庭的な分量表現とそのグラム換算
type PortionRule struct {
	Label string
	Grams float64
}

// DishRule は複合料理を構成食材に分解する規則
type DishRule struct {
	Dish        string
	Ingredients []Entry
}

// Rules は分量推定の規則セット
type Rules struct {
	// Portions は一般的な単位あたりの既定量
	Portions []PortionRule
	// VagueQuantities は曖昧な量の表現に対する既定量
	VagueQuantities []PortionRule
	// Dishes は複合料理の分解規則
	Dishes []DishRule
}

// DefaultRules は標準の分量推定規則
var DefaultRules = Rules{
	Portions: []PortionRule{
		{Label: "small fruit (apple, orange)", Grams: 150},
		{Label: "medium fruit (banana)", Grams: 120},
		{Label: "large fruit (mango)", Grams: 200},
		{Label: "egg", Grams: 50},
		{Label: "slice of bread", Grams: 30},
		{Label: "cup of rice (cooked)", Grams: 200},
		{Label: "cup of milk", Grams: 240},
		{Label: "cup of juice", Grams: 240},
		{Label: "glass of water", Grams: 250},
		{Label: "tablespoon", Grams: 15},
		{Label: "teaspoon", Grams: 5},
		{Label: "pinch of spices or salt", Grams: 2},
	},
	VagueQuantities: []PortionRule{
		{Label: "some rice", Grams: 150},
		{Label: "a lot of spinach", Grams: 200},
		{Label: "a little salt", Grams: 2},
		{Label: "a glass of water", Grams: 250},
	},
	Dishes: []DishRule{
		{
			Dish: "sandwich",
			Ingredients: []Entry{
				{Food: "bread", PortionGrams: 60},
				{Food: "chicken breast", PortionGrams: 80},
				{Food: "lettuce", PortionGrams: 15},
				{Food: "tomato", PortionGrams: 30},
			},
		},
		{
			Dish: "chicken salad",
			Ingredients: []Entry{
				{Food: "chicken breast", PortionGrams: 120},
				{Food: "lettuce", PortionGrams: 50},
				{Food: "tomato", PortionGrams: 60},
				{Food: "cucumber", PortionGrams: 50},
				{Food: "olive oil", PortionGrams: 10},
			},
		},
		{
			Dish: "smoothie with banana and milk",
			Ingredients: []Entry{
				{Food: "banana", PortionGrams: 120},
				{Food: "milk", PortionGrams: 240},
			},
		},
		{
			Dish: "coffee with milk and sugar",
			Ingredients: []Entry{
				{Food: "coffee", PortionGrams: 240},
				{Food: "milk", PortionGrams: 30},
				{Food: "sugar", PortionGrams: 5},
			},
		},
		{
			Dish: "big bowl of oatmeal with honey",
			Ingredients: []Entry{
				{Food: "oats", PortionGrams: 80},
				{Food: "honey", PortionGrams: 20},
			},
		},
	},
}
