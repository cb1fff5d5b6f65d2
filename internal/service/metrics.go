package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rotation results recorded by auth_token_rotations_total.
const (
	rotationSuccess  = "success"
	rotationInvalid  = "invalid"
	rotationExpired  = "expired"
	rotationRevoked  = "revoked"
	rotationReuse    = "reuse"
	rotationConflict = "conflict"
	rotationError    = "error"
)

var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	tokenRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_rotations_total",
			Help: "Refresh token rotations by result",
		},
		[]string{"result"},
	)

	tokenReuseDetectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_token_reuse_detected_total",
			Help: "Replays of already-rotated refresh tokens",
		},
	)

	sessionsRevokedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Refresh tokens revoked by reason",
		},
		[]string{"reason"},
	)

	expiredTokensPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_expired_tokens_purged_total",
			Help: "Expired refresh tokens physically deleted",
		},
	)
)
