package service

import (
	"context"
	"time"

	"github.com/apex/log"
)

// RunOTPSweeper deletes expired challenges every interval until ctx is done.
func RunOTPSweeper(ctx context.Context, otp OTPService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			n, err := otp.SweepExpired(ctx, t)
			if err != nil {
				log.WithError(err).Warn("otp sweep failed")
				continue
			}
			if n > 0 {
				log.WithField("deleted", n).Info("expired otp challenges swept")
			}
		}
	}
}
