package models

import "time"

// Vault is a side pocket holding money set apart from the main balance.
type Vault struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"userId" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	Purpose      string    `json:"purpose" db:"purpose"` // savings, emergency, investment, education, holiday, custom
	Balance      int64     `json:"balance" db:"balance"`
	TargetAmount int64     `json:"targetAmount,omitempty" db:"target_amount"`
	Color        string    `json:"color" db:"color"`
	Icon         string    `json:"icon" db:"icon"`
	IsLocked     bool      `json:"isLocked" db:"is_locked"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// VaultTransaction records one movement between the main balance and a vault.
type VaultTransaction struct {
	ID          string    `json:"id" db:"id"`
	VaultID     string    `json:"vaultId" db:"vault_id"`
	Type        string    `json:"type" db:"type"` // deposit or withdrawal
	Amount      int64     `json:"amount" db:"amount"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type CreateVaultRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=80"`
	Purpose      string `json:"purpose" validate:"required,oneof=savings emergency investment education holiday custom"`
	TargetAmount int64  `json:"targetAmount" validate:"omitempty,gt=0"`
	Color        string `json:"color" validate:"required,max=20"`
	Icon         string `json:"icon" validate:"required,max=40"`
}

type UpdateVaultRequest struct {
	Name         *string `json:"name" validate:"omitempty,min=1,max=80"`
	TargetAmount *int64  `json:"targetAmount" validate:"omitempty,gt=0"`
	Color        *string `json:"color" validate:"omitempty,max=20"`
	IsLocked     *bool   `json:"isLocked"`
}
