package aws

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published by the pipeline.
const (
	MetricInvalidSignature    = "InvalidSignature"
	MetricAmountMismatch      = "AmountMismatch"
	MetricClosedIntentPayment = "ClosedIntentPayment"
	MetricRateLimited         = "RateLimited"
)

// Metrics publishes counters to CloudWatch. Publishing is best-effort: a
// failed PutMetricData is logged and dropped.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	Logger     *slog.Logger
	nowFunc    func() time.Time
}

func NewMetrics(cw CloudWatchAPI, namespace string, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	if namespace == "" {
		namespace = "CheckoutReconciler"
	}
	return &Metrics{CloudWatch: cw, Namespace: namespace, Logger: logger, nowFunc: time.Now}
}

// Incr adds one to the named counter with optional dimension pairs
// (name, value, name, value...).
func (m *Metrics) Incr(ctx context.Context, name string, dims ...string) {
	if m == nil || m.CloudWatch == nil {
		return
	}
	datum := cwtypes.MetricDatum{
		MetricName: awsString(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      float64Ptr(1),
		Timestamp:  timePtr(m.nowFunc()),
	}
	for i := 0; i+1 < len(dims); i += 2 {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(dims[i]),
			Value: awsString(dims[i+1]),
		})
	}
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.Namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.Logger.ErrorContext(ctx, "put metric failed", "metric", name, "err", err)
	}
}

func float64Ptr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
