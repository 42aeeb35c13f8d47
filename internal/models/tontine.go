package models

import "time"

// Tontine is a rotating savings group: members contribute a fixed amount
// each round and the pot rotates to one member per round.
type Tontine struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	CreatorID          string    `json:"creatorId" db:"creator_id"`
	ContributionAmount int64     `json:"contributionAmount" db:"contribution_amount"`
	Frequency          string    `json:"frequency" db:"frequency"` // weekly or monthly
	MaxMembers         int       `json:"maxMembers" db:"max_members"`
	MemberCount        int       `json:"memberCount" db:"member_count"`
	CurrentRound       int       `json:"currentRound" db:"current_round"`
	Status             string    `json:"status" db:"status"` // open, active, completed
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
}

type TontineMember struct {
	ID        string    `json:"id" db:"id"`
	TontineID string    `json:"tontineId" db:"tontine_id"`
	UserID    string    `json:"userId" db:"user_id"`
	Position  int       `json:"position" db:"position"` // payout order
	JoinedAt  time.Time `json:"joinedAt" db:"joined_at"`
}

type TontineContribution struct {
	ID            string    `json:"id" db:"id"`
	TontineID     string    `json:"tontineId" db:"tontine_id"`
	UserID        string    `json:"userId" db:"user_id"`
	Round         int       `json:"round" db:"round"`
	Amount        int64     `json:"amount" db:"amount"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

type CreateTontineRequest struct {
	Name               string `json:"name" validate:"required,min=1,max=80"`
	ContributionAmount int64  `json:"contributionAmount" validate:"required,gt=0"`
	Frequency          string `json:"frequency" validate:"required,oneof=weekly monthly"`
	MaxMembers         int    `json:"maxMembers" validate:"required,min=2,max=50"`
}
