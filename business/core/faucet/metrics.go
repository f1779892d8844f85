package faucet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faucet_challenges_issued_total",
		Help: "Number of proof of work challenges issued.",
	})

	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faucet_claims_total",
		Help: "Number of claims by outcome.",
	}, []string{"outcome"})

	etherDisbursed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faucet_disbursed_ether_total",
		Help: "Amount of ether submitted for transfer.",
	})

	recordsSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faucet_records_swept_total",
		Help: "Number of expired records removed by the sweeps.",
	}, []string{"store"})
)
