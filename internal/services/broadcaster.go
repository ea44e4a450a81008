package services

import "coinflip-relay/internal/models"

type Broadcaster interface {
	BroadcastMatchUpdate(match *models.Match)
	BroadcastSettlement(settlement *models.Settlement)
}
