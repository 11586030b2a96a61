package metrics

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"catalogflow/logger"
)

// PutMetricDataAPI is the part of the CloudWatch client used for publishing.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes metric datums to one namespace, throttled per metric
// and dimension set. Values emitted inside the throttle interval are summed
// into the next datum, so counts are never dropped. A nil *CloudWatch
// publishes nothing.
type CloudWatch struct {
	client    PutMetricDataAPI
	namespace string
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	last    map[string]time.Time
	pending map[string]*pendingDatum
}

type pendingDatum struct {
	metric string
	unit   cwtypes.StandardUnit
	dims   []cwtypes.Dimension
	sum    float64
}

const defaultPublishInterval = 10 * time.Second

func NewCloudWatch(client PutMetricDataAPI, namespace string) *CloudWatch {
	if namespace == "" {
		namespace = "Catalogflow"
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		interval:  defaultPublishInterval,
		now:       time.Now,
		last:      make(map[string]time.Time),
		pending:   make(map[string]*pendingDatum),
	}
}

// InitCloudWatch loads the AWS configuration for region and returns a
// publisher. If region is empty it falls back to AWS_REGION.
func InitCloudWatch(ctx context.Context, region, namespace string) (*CloudWatch, error) {
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	cw := NewCloudWatch(cloudwatch.NewFromConfig(cfg), namespace)
	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": cw.namespace,
	}).Info("initialized CloudWatch client")
	return cw, nil
}

// Emit adds value to the metric and publishes the running sum unless the
// same metric was published within the throttle interval. String fields
// other than unit become dimensions.
func (c *CloudWatch) Emit(component, metric string, value float64, fields logger.Fields) {
	if c == nil || c.client == nil {
		return
	}

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := fields["unit"].(string); ok {
		unit = metricUnitFromString(rawUnit)
	}
	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := component + "/" + metric
	for _, k := range keys {
		if k == "unit" {
			continue
		}
		if v, ok := fields[k].(string); ok && v != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
			key += "," + k + "=" + v
		}
	}

	now := c.now()
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok {
		p = &pendingDatum{metric: metric, unit: unit, dims: dims}
		c.pending[key] = p
	}
	p.sum += value
	if last, ok := c.last[key]; ok && now.Sub(last) < c.interval {
		c.mu.Unlock()
		return
	}
	c.last[key] = now
	delete(c.pending, key)
	c.mu.Unlock()

	c.put(context.Background(), now, []*pendingDatum{p})
}

// Flush publishes every sum still held back by the throttle.
func (c *CloudWatch) Flush(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	now := c.now()
	c.mu.Lock()
	held := make([]*pendingDatum, 0, len(c.pending))
	for key, p := range c.pending {
		held = append(held, p)
		c.last[key] = now
	}
	c.pending = make(map[string]*pendingDatum)
	c.mu.Unlock()

	c.put(ctx, now, held)
}

func (c *CloudWatch) put(ctx context.Context, now time.Time, data []*pendingDatum) {
	if len(data) == 0 {
		return
	}
	datums := make([]cwtypes.MetricDatum, 0, len(data))
	for _, p := range data {
		datums = append(datums, cwtypes.MetricDatum{
			MetricName: aws.String(p.metric),
			Dimensions: p.dims,
			Unit:       p.unit,
			Value:      aws.Float64(p.sum),
			Timestamp:  aws.Time(now),
		})
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: datums,
	})
	if err != nil {
		logger.GetLogger().WithComponent("cloudwatch").WithError(err).Warn("failed to publish CloudWatch metrics")
	}
}

func metricUnitFromString(unit string) cwtypes.StandardUnit {
	switch strings.ToLower(unit) {
	case "percent":
		return cwtypes.StandardUnitPercent
	case "milliseconds":
		return cwtypes.StandardUnitMilliseconds
	default:
		return cwtypes.StandardUnitCount
	}
}
