package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	reservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_reservations_total",
			Help: "Reservation operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	tierRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tier_remaining_units",
			Help: "Live remaining sellable units per tier",
		},
		[]string{"tier_id"},
	)

	ticketsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_generated_total",
			Help: "Tickets materialized by completed purchases",
		},
		[]string{"tier_id"},
	)

	checkinOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_operations_total",
			Help: "Check-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservation_sweep_duration_seconds",
			Help:    "Duration of expired-reservation sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	inconsistencyAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_inconsistency_alerts_total",
			Help: "Purchases left in failed state after capacity was committed",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectTierGauges(context.Background())
	}
}

func (m *Monitor) collectTierGauges(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "tier:remaining:*").Result()
	for _, key := range keys {
		tierID := key[len("tier:remaining:"):]
		remaining, err := m.redis.Get(ctx, key).Int64()
		if err != nil {
			continue
		}
		tierRemaining.WithLabelValues(tierID).Set(float64(remaining))
	}
}

// TrackReservation records a reserve/release/commit outcome.
func (m *Monitor) TrackReservation(operation, outcome string) {
	reservationOps.WithLabelValues(operation, outcome).Inc()
}

// TrackTickets records a generated batch.
func (m *Monitor) TrackTickets(tierID string, count int) {
	ticketsGenerated.WithLabelValues(tierID).Add(float64(count))
}

// TrackCheckin records a check-in attempt outcome.
func (m *Monitor) TrackCheckin(outcome string) {
	checkinOps.WithLabelValues(outcome).Inc()
}

// TrackSweep records one sweep pass.
func (m *Monitor) TrackSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

// TrackInconsistency counts a generation failure after capacity commit.
func (m *Monitor) TrackInconsistency() {
	inconsistencyAlerts.Inc()
}
