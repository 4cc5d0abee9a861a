package models

// Plan is an entry of the pricing catalog
type Plan struct {
	ID          PlanType `json:"id"`
	Name        string   `json:"name"`
	Price       int      `json:"price"`
	Currency    string   `json:"currency"`
	Features    []string `json:"features"`
	Limitations []string `json:"limitations,omitempty"`
	Highlighted bool     `json:"highlighted,omitempty"`
}

// Plans is the pricing catalog shown on the pricing page
var Plans = []Plan{
	{
		ID:       PlanFree,
		Name:     "Free",
		Price:    0,
		Currency: "R$",
		Features: []string{
			"20 minutos de edição por mês",
			"Resolução 720p",
			"Legendas automáticas",
			"Cortes automáticos",
		},
		Limitations: []string{
			"Marca d'água ClipWave",
			"Exportação limitada",
		},
	},
	{
		ID:       PlanPro,
		Name:     "Pro",
		Price:    39,
		Currency: "R$",
		Features: []string{
			"Edição ilimitada",
			"Resolução 1080p",
			"Legendas virais estilizadas",
			"Templates premium",
			"Highlights automáticos",
			"Exportação rápida",
		},
		Highlighted: true,
	},
	{
		ID:       PlanCreator,
		Name:     "Creator",
		Price:    89,
		Currency: "R$",
		Features: []string{
			"Tudo do Pro +",
			"Resolução 4K",
			"B-roll automático com IA",
			"Dublagem em 3 idiomas",
			"Clonagem de voz",
			"Sem marca d'água",
			"Suporte prioritário",
			"API de acesso",
		},
	},
}

// FindPlan returns the catalog entry for id
func FindPlan(id PlanType) (Plan, bool) {
	for _, p := range Plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
