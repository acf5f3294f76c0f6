package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/folioworks/vitae/internal/auth"
	"github.com/folioworks/vitae/internal/config"
	"github.com/folioworks/vitae/internal/httputil"
	"github.com/folioworks/vitae/internal/telemetry"
)

const (
	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// DailyLimitFor maps a plan onto its configured daily AI request quota.
func DailyLimitFor(plan auth.Plan, cfg config.QuotaConfig) int64 {
	if plan == auth.PlanPro {
		return int64(cfg.ProDailyLimit)
	}
	return int64(cfg.FreeDailyLimit)
}

// Middleware returns chi middleware that enforces the per-user RPM
// limit and the plan's daily AI quota.
func Middleware(limiter *Limiter, quota *QuotaTracker, cfg func() config.QuotaConfig, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			userInfo, ok := auth.UserFromContext(r.Context())
			if !ok {
				// No auth info: let the request pass, auth middleware will catch it
				next.ServeHTTP(w, r)
				return
			}

			qc := cfg()
			rpm := qc.RequestsPerMinute

			rpmKey := fmt.Sprintf("rpm:%s", userInfo.UserID)
			result, _ := limiter.Check(r.Context(), rpmKey, int64(rpm), time.Minute)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"user_id", userInfo.UserID,
					"dimension", "rpm",
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm")
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			dailyLimit := DailyLimitFor(userInfo.Plan, qc)
			quotaResult, _ := quota.Check(r.Context(), userInfo.UserID, dailyLimit)
			if !quotaResult.Allowed {
				slog.Warn("daily quota exceeded",
					"request_id", reqID,
					"user_id", userInfo.UserID,
					"plan", string(userInfo.Plan),
					"used", quotaResult.Used,
					"limit", quotaResult.Limit,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("daily_quota")
				}
				httputil.WriteQuotaError(w, reqID,
					fmt.Sprintf("Daily AI quota exceeded: used %d of %d requests", quotaResult.Used, quotaResult.Limit))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
