package nutrition

// Nutrients は栄養素の値を表す。
// 食品レコードでは100gあたり、スケール後は摂取量あたりの値を保持する。
type Nutrients struct {
	// マクロ栄養素
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`

	Fiber        float64 `json:"fiber"`
	SaturatedFat float64 `json:"saturatedFat"`
	Omega3       float64 `json:"omega3"`
	Omega6       float64 `json:"omega6"`

	// ミネラル
	Sodium    float64 `json:"sodium"`
	Potassium float64 `json:"potassium"`
	Calcium   float64 `json:"calcium"`
	Iron      float64 `json:"iron"`
	Magnesium float64 `json:"magnesium"`
	Zinc      float64 `json:"zinc"`

	// ビタミン
	VitaminA   float64 `json:"vitaminA"`
	VitaminC   float64 `json:"vitaminC"`
	VitaminD   float64 `json:"vitaminD"`
	VitaminE   float64 `json:"vitaminE"`
	VitaminK   float64 `json:"vitaminK"`
	VitaminB1  float64 `json:"vitaminB1"`
	VitaminB2  float64 `json:"vitaminB2"`
	VitaminB3  float64 `json:"vitaminB3"`
	VitaminB5  float64 `json:"vitaminB5"`
	VitaminB6  float64 `json:"vitaminB6"`
	VitaminB9  float64 `json:"vitaminB9"`
	VitaminB12 float64 `json:"vitaminB12"`
}

// fields は全栄養素フィールドへのポインタを宣言順で返す
func (n *Nutrients) fields() []*float64 {
	return []*float64{
		&n.Calories, &n.Protein, &n.Carbs, &n.Fat,
		&n.Fiber, &n.SaturatedFat, &n.Omega3, &n.Omega6,
		&n.Sodium, &n.Potassium, &n.Calcium, &n.Iron, &n.Magnesium, &n.Zinc,
		&n.VitaminA, &n.VitaminC, &n.VitaminD, &n.VitaminE, &n.VitaminK,
		&n.VitaminB1, &n.VitaminB2, &n.VitaminB3, &n.VitaminB5, &n.VitaminB6, &n.VitaminB9, &n.VitaminB12,
	}
}

// FoodRecord は栄養データベースの正規レコード（100gあたり）
type FoodRecord struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	DataSource string    `json:"dataSource"`
	Nutrients  Nutrients `json:"nutrients"`
	Embedding  []float32 `json:"-"`
}

// Candidate は照合候補となる食品レコードの射影
type Candidate struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Distance *float64 `json:"distance,omitempty"` // ベクトル検索時のみ（小さいほど類似）
}

// Candidate は FoodRecord を候補に射影する
func (r *FoodRecord) Candidate() Candidate {
	return Candidate{
		ID:       r.ID,
		Name:     r.Name,
		Category: r.Category,
	}
}
