package rounds

import "minigames/internal/domain"

// DefaultRound is used when no round table or generator is configured.
func DefaultRound(game domain.Game) domain.Round {
	if game == domain.GameTray {
		return domain.Round{
			ID:       1,
			Label:    "Mesa 1",
			Game:     domain.GameTray,
			Capacity: 9,
			Items: []domain.Item{
				{ID: "cup", Title: "Xicara", Cost: 1, Height: 1, Weight: 0.5, Value: 4, Shape: "cup", Material: "ceramic"},
				{ID: "glass", Title: "Copo", Cost: 1, Height: 2, Weight: 0.4, Value: 3, Shape: "glass", Material: "glass"},
				{ID: "bowl", Title: "Tigela", Cost: 1, Height: 1, Weight: 1, Value: 5, Shape: "bowl", Material: "ceramic"},
				{ID: "teapot", Title: "Bule", Cost: 2, Height: 2, Weight: 2.5, Value: 9, Shape: "teapot", Material: "metal"},
				{ID: "plate", Title: "Prato", Cost: 4, Height: 1, Weight: 3, Value: 12, Shape: "plate", Material: "ceramic"},
				{ID: "bottle", Title: "Garrafa", Cost: 4, Height: 3, Weight: 3.5, Value: 14, Shape: "bottle", Material: "glass"},
			},
		}
	}
	return domain.Round{
		ID:       1,
		Label:    "Dia 1",
		Game:     domain.GamePlanner,
		Capacity: 8,
		Items: []domain.Item{
			{ID: "t1", Title: "Planejar campanha mensal", Cost: 2, Value: 3},
			{ID: "t2", Title: "Responder emails", Cost: 1, Value: 1},
			{ID: "t3", Title: "Revisar relatorio financeiro", Cost: 2, Value: 2},
			{ID: "t4", Title: "Preparar apresentacao", Cost: 2, Value: 3},
			{ID: "t5", Title: "Atualizar planilha", Cost: 1, Value: 1},
		},
	}
}
