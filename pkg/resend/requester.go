// Package resend pulls transactions a peer holds for our keys.
package resend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/busybox42/aegis-pm/pkg/enclave"
	"github.com/busybox42/aegis-pm/pkg/network"
	"github.com/busybox42/aegis-pm/pkg/types"
)

var errRefused = errors.New("peer refused resend request")

// TransactionRequester asks a peer to resend everything addressed to the
// local node's keys.
type TransactionRequester interface {
	// RequestAllTransactionsFromNode never fails; outcomes are only logged.
	RequestAllTransactionsFromNode(ctx context.Context, target types.NodeUri)
}

type Option func(*Requester)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(r *Requester) {
		r.retry = policy
	}
}

// WithConcurrency sets how many keys are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Requester) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Requester) {
		r.log = log
	}
}

// Requester is the TransactionRequester used by the sidecar.
type Requester struct {
	enclave     enclave.Enclave
	client      network.P2pClient
	retry       RetryPolicy
	concurrency int
	log         logrus.FieldLogger
}

func NewTransactionRequester(e enclave.Enclave, client network.P2pClient, opts ...Option) *Requester {
	r := &Requester{
		enclave:     e,
		client:      client,
		retry:       DefaultRetryPolicy(),
		concurrency: 1,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Requester) RequestAllTransactionsFromNode(ctx context.Context, target types.NodeUri) {
	keys := r.enclave.PublicKeys()
	if len(keys) == 0 {
		return
	}

	start := time.Now()
	log := r.log.WithFields(logrus.Fields{
		"sweep":  uuid.New().String(),
		"target": target.String(),
	})
	log.WithField("keys", len(keys)).Info("Requesting transactions from peer")

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			r.requestKey(ctx, log, target, key)
			return nil
		})
	}
	_ = g.Wait()

	sweepDuration.Observe(time.Since(start).Seconds())
}

func (r *Requester) requestKey(ctx context.Context, log logrus.FieldLogger, target types.NodeUri, key types.PublicKey) {
	req := types.NewResendRequest(key, target)
	log = log.WithField("key", req.PublicKey)

	attempt := 0
	op := func() (err error) {
		attempt++
		entry := log.WithField("attempt", attempt)
		defer func() {
			if p := recover(); p != nil {
				attemptsTotal.WithLabelValues(outcomeError).Inc()
				err = fmt.Errorf("resend attempt panicked: %v", p)
				entry.WithError(err).Warn("Resend attempt failed")
			}
		}()

		ok, err := r.client.MakeResendRequest(ctx, target, req)
		switch {
		case err != nil:
			attemptsTotal.WithLabelValues(outcomeError).Inc()
			entry.WithError(err).Warn("Resend attempt failed")
			return err
		case !ok:
			attemptsTotal.WithLabelValues(outcomeRefused).Inc()
			entry.Warn("Resend attempt refused")
			return errRefused
		}
		attemptsTotal.WithLabelValues(outcomeSuccess).Inc()
		entry.Debug("Resend attempt succeeded")
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(r.retry.newBackOff(), ctx)); err != nil {
		keysTotal.WithLabelValues(resultExhausted).Inc()
		log.WithError(err).WithField("attempts", attempt).Error("Giving up on resend request")
		return
	}
	keysTotal.WithLabelValues(resultDelivered).Inc()
}
