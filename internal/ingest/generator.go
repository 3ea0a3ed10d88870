package ingest

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	wtypes "github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/spaolacci/murmur3"
)

// MeasureName is the multi-measure name every generated record carries.
const MeasureName = "metrics"

var regions = []string{"us-east-1", "us-west-2", "eu-west-1", "ap-northeast-1"}

var zones = []string{"a", "b", "c"}

// Host is a simulated machine.
type Host struct {
	Region   string
	AZ       string
	Hostname string
}

// Dimensions returns the host's Timestream dimensions.
func (h Host) Dimensions() []wtypes.Dimension {
	return []wtypes.Dimension{
		{Name: aws.String("region"), Value: aws.String(h.Region)},
		{Name: aws.String("az"), Value: aws.String(h.AZ)},
		{Name: aws.String("hostname"), Value: aws.String(h.Hostname)},
	}
}

// PlaceHost assigns hostname a region and availability zone. The placement
// depends only on the name.
func PlaceHost(hostname string) Host {
	h := murmur3.Sum32([]byte(hostname))
	region := regions[h%uint32(len(regions))]
	return Host{
		Region:   region,
		AZ:       region + zones[(h>>8)%uint32(len(zones))],
		Hostname: hostname,
	}
}

// GeneratorConfig controls synthetic data generation.
type GeneratorConfig struct {
	Hosts         int
	PointsPerHost int
	Interval      time.Duration
	// Seed fixes the hostnames and values; zero seeds randomly.
	Seed uint64
	// Unit is the record time unit; MILLISECONDS when empty.
	Unit wtypes.TimeUnit
	// Include is always generated as the first host when set.
	Include string
}

// Generator produces multi-measure host-metric records.
type Generator struct {
	cfg   GeneratorConfig
	faker *gofakeit.Faker
	hosts []Host
}

// NewGenerator creates a generator and names its hosts.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Hosts < 1 {
		cfg.Hosts = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Unit == "" {
		cfg.Unit = wtypes.TimeUnitMilliseconds
	}

	g := &Generator{cfg: cfg, faker: gofakeit.New(cfg.Seed)}
	seen := make(map[string]struct{}, cfg.Hosts)
	if cfg.Include != "" {
		seen[cfg.Include] = struct{}{}
		g.hosts = append(g.hosts, PlaceHost(cfg.Include))
	}
	for len(g.hosts) < cfg.Hosts {
		name := "host-" + g.faker.Regex("[0-9A-Za-z]{5}")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		g.hosts = append(g.hosts, PlaceHost(name))
	}
	return g
}

// Hosts returns the simulated hosts.
func (g *Generator) Hosts() []Host {
	return g.hosts
}

// Records generates PointsPerHost records for every host, the newest at end
// and each earlier point one Interval apart. Records are ordered by time,
// oldest first, then by host.
func (g *Generator) Records(end time.Time) []wtypes.Record {
	out := make([]wtypes.Record, 0, len(g.hosts)*g.cfg.PointsPerHost)
	for p := g.cfg.PointsPerHost - 1; p >= 0; p-- {
		ts := g.formatTime(end.Add(-time.Duration(p) * g.cfg.Interval))
		for _, h := range g.hosts {
			out = append(out, wtypes.Record{
				Dimensions:       h.Dimensions(),
				MeasureName:      aws.String(MeasureName),
				MeasureValueType: wtypes.MeasureValueTypeMulti,
				MeasureValues: []wtypes.MeasureValue{
					g.measure("cpu_utilization"),
					g.measure("memory_utilization"),
				},
				Time:     aws.String(ts),
				TimeUnit: g.cfg.Unit,
			})
		}
	}
	return out
}

func (g *Generator) measure(name string) wtypes.MeasureValue {
	v := g.faker.Float64Range(0, 100)
	return wtypes.MeasureValue{
		Name:  aws.String(name),
		Value: aws.String(strconv.FormatFloat(v, 'f', 2, 64)),
		Type:  wtypes.MeasureValueTypeDouble,
	}
}

func (g *Generator) formatTime(t time.Time) string {
	switch g.cfg.Unit {
	case wtypes.TimeUnitSeconds:
		return strconv.FormatInt(t.Unix(), 10)
	case wtypes.TimeUnitMicroseconds:
		return strconv.FormatInt(t.UnixMicro(), 10)
	case wtypes.TimeUnitNanoseconds:
		return strconv.FormatInt(t.UnixNano(), 10)
	default:
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
}
