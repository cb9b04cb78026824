package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_transactions_created_total",
		Help: "Total number of transactions created",
	})

	TransactionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_transaction_transitions_total",
		Help: "Total number of applied transaction status transitions",
	}, []string{"to"})

	TransactionsDeclinedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_transactions_declined_total",
		Help: "Total number of declined transaction operations",
	}, []string{"operation", "reason"})

	RequestsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_requests_created_total",
		Help: "Total number of material requests created",
	}, []string{"urgency"})

	RequestsFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_requests_fulfilled_total",
		Help: "Total number of material requests fulfilled",
	})

	FeedbackSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_feedback_submitted_total",
		Help: "Total number of feedback entries submitted",
	}, []string{"stage"})

	SellerReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_seller_reports_total",
		Help: "Total number of seller reports filed",
	})

	NotificationsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_notifications_emitted_total",
		Help: "Total number of notifications emitted",
	}, []string{"kind"})

	NotificationsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_notifications_skipped_total",
		Help: "Total number of notification emissions skipped",
	}, []string{"reason"})

	NotificationDispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exchange_notification_dispatch_latency_seconds",
		Help:    "Time from triggering mutation to stored notification",
		Buckets: prometheus.DefBuckets,
	})

	InboundEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_inbound_events_total",
		Help: "Total number of inbound lifecycle events handled",
	}, []string{"type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
