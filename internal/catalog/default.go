package catalog

const (
	ChoiceQuaseSempre = "QUASE_SEMPRE"
	ChoiceQuaseNunca  = "QUASE_NUNCA"
)

// DefaultChoices is choice set version 1.
func DefaultChoices() ChoiceSet {
	return ChoiceSet{
		Version: 1,
		Choices: []Choice{
			{Key: ChoiceQuaseSempre, Label: "Quase sempre", Weight: 75},
			{Key: ChoiceQuaseNunca, Label: "Quase nunca", Weight: 25},
		},
	}
}

func DefaultQuestions() []Question {
	return []Question{
		{ID: 1, Text: "Tenho compreensão do que meu líder me demanda"},
		{ID: 2, Text: "Me parece claro o que meu líder está dizendo durante nossas conversas"},
		{ID: 3, Text: "Meu líder se assegura de que meu entendimento sobre sua fala está correto"},
		{ID: 4, Text: "Minha líder checa meu entendimento sobre o que está sento dito ou solicitado"},
		{ID: 5, Text: "Meu líder esclarece claramente as prioridades de tarefa"},
		{ID: 6, Text: "Tenho liberdade para questionar os posicionamentos do meu líder"},
		{ID: 7, Text: "Meu líder faz aquilo que fala"},
		{ID: 8, Text: "Confio que meu líder sabe me direcionar para o cumprimento da estratégia"},
		{ID: 9, Text: "Meu líder mostra firmeza diante de decisões difíceis"},
		{ID: 10, Text: "Sinto que meu líder toma decisões com objetividade"},
		{ID: 11, Text: "Meu líder favorece as trocas e relacionamento entre os integrantes do time"},
		{ID: 12, Text: "Meu líder confia em mim"},
		{ID: 13, Text: "Meu líder sustenta sua posição diante de pressão"},
		{ID: 14, Text: "Meu líder enfrenta eventual competição velada dentro do time"},
		{ID: 15, Text: "Meu líder sustenta uma posição impopular se for necessária para o negócio"},
		{ID: 16, Text: "Meu líder demonstra saber lidar com erros próprios de forma adequada"},
		{ID: 17, Text: "Meu líder demonstra saber lidar com erros dos liderados de forma construtiva"},
		{ID: 18, Text: "Meu líder faz o que é o melhor para o negócio mesmo que não seja aprovado pelos liderados"},
		{ID: 19, Text: "Meu líder promove ações para fortalecer a confiança interna do time"},
		{ID: 20, Text: "Meu líder ouve minhas necessidades"},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(DefaultQuestions(), DefaultChoices())
	if err != nil {
		panic("catalog: invalid built-in catalog: " + err.Error())
	}
	return c
}
