package models

const (
	RelationshipPlayer1 = "you-player1"
	RelationshipPlayer2 = "you-player2"
	RelationshipOther   = "other"
)

type MatchView struct {
	*Match
	State        MatchState `json:"state"`
	BetAmountSUI string     `json:"bet_amount_sui"`
	Relationship string     `json:"relationship,omitempty"`
}

func NewMatchView(m *Match, viewer string) *MatchView {
	return &MatchView{
		Match:        m,
		State:        m.State(),
		BetAmountSUI: FormatMist(m.BetAmount),
		Relationship: m.Relationship(viewer),
	}
}

type BalanceResponse struct {
	Owner       string `json:"owner"`
	CoinType    string `json:"coin_type"`
	TotalMist   uint64 `json:"total_mist"`
	TotalSUI    string `json:"total_sui"`
	CoinObjects int    `json:"coin_objects"`
}
