package faucetgrp

import (
	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/ardanlabs/faucet/foundation/ledger"
)

type challengeResponse struct {
	SessionID  string `json:"sessionId"`
	Challenge  string `json:"challenge"`
	Difficulty int    `json:"difficulty"`
}

func toChallengeResponse(ch faucet.Challenge) challengeResponse {
	return challengeResponse{
		SessionID:  ch.SessionID,
		Challenge:  ch.Challenge,
		Difficulty: ch.Difficulty,
	}
}

// claimRequest is the body of a claim. The address is checked by the core
// so a faucet that is not configured reports that first.
type claimRequest struct {
	Address   string  `json:"address"`
	SessionID string  `json:"sessionId" validate:"required"`
	Nonce     *uint64 `json:"nonce" validate:"required"`
}

type claimResponse struct {
	Success       bool    `json:"success"`
	TxReference   string  `json:"txReference"`
	TxHash        string  `json:"txHash"`
	Amount        string  `json:"amount"`
	Confirmations *uint64 `json:"confirmations,omitempty"`
}

func toClaimResponse(rcpt faucet.Receipt) claimResponse {
	resp := claimResponse{
		Success:     true,
		TxReference: rcpt.TxHash,
		TxHash:      rcpt.TxHash,
		Amount:      ledger.FormatEther(rcpt.Amount),
	}

	if rcpt.Confirmed {
		confirmations := rcpt.Confirmations
		resp.Confirmations = &confirmations
	}

	return resp
}

type infoResponse struct {
	Configured    bool    `json:"configured"`
	Address       string  `json:"address,omitempty"`
	Balance       string  `json:"balance,omitempty"`
	DripAmount    string  `json:"dripAmount"`
	CooldownHours float64 `json:"cooldownHours"`
	Difficulty    int     `json:"difficulty"`
}

func toInfoResponse(info faucet.Info) infoResponse {
	resp := infoResponse{
		Configured:    info.Configured,
		Address:       info.Address,
		DripAmount:    ledger.FormatEther(info.DripAmount),
		CooldownHours: info.Cooldown.Hours(),
		Difficulty:    info.Difficulty,
	}

	if info.Balance != nil {
		resp.Balance = ledger.FormatEther(info.Balance)
	}

	return resp
}
