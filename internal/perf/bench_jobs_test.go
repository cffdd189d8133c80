package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/pricing"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

type refresher struct {
	in    pricing.Input
	fails int
}

func (r *refresher) RefreshForCatalogItem(context.Context, int64) (map[pricing.Health]int, error) {
	if r.fails > 0 {
		r.fails--
		return nil, errors.New("timeout")
	}
	res, err := pricing.Compute(r.in)
	if err != nil {
		return nil, err
	}
	return map[pricing.Health]int{res.Breakdown.Health: 1}, nil
}

func TestCatalogRefreshThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	r := &refresher{in: pricingInput(50), fails: 2}
	job := jobs.NewCatalogRefreshJob(r, nil, metrics)

	for i := int64(1); i <= 40; i++ {
		task, err := jobs.NewCatalogItemUpdatedTask(i)
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		_ = job.Handle(context.Background(), task)
	}
	if err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskCatalogItemUpdated, []byte("{"))); err == nil {
		t.Fatal("expected malformed payload to be rejected")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_quotes_jobs_runs_total", map[string]string{"job": jobs.TaskCatalogItemUpdated, "status": "success"})
	failure := metricValue(t, families, "odyssey_quotes_jobs_runs_total", map[string]string{"job": jobs.TaskCatalogItemUpdated, "status": "failure"})
	if success+failure != 40 {
		t.Fatalf("expected 40 tracked runs, got %v", success+failure)
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("refresh success ratio too low: %f", ratio)
	}

	if mean := histogramMean(t, families, "odyssey_quotes_jobs_duration_seconds", map[string]string{"job": jobs.TaskCatalogItemUpdated}); mean > 0.5 {
		t.Fatalf("refresh duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) && fam.GetType() == dto.MetricType_COUNTER {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}
