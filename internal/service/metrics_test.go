package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ChecksTotal.WithLabelValues("activity", "deny").Inc()
	m.ChecksTotal.WithLabelValues("activity", "deny").Inc()
	m.ChecksTotal.WithLabelValues("broadcast", "allow").Inc()
	m.ReloadsTotal.Inc()
	m.RulesLoaded.WithLabelValues("activity").Set(7)
	m.AuditDropsTotal.Inc()

	checks := gatherFamily(t, reg, "intentgate_checks_total")
	if checks == nil {
		t.Fatal("intentgate_checks_total not registered")
	}
	var denies float64
	for _, metric := range checks.GetMetric() {
		labels := map[string]string{}
		for _, l := range metric.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		if labels["kind"] == "activity" && labels["decision"] == "deny" {
			denies = metric.GetCounter().GetValue()
		}
	}
	if denies != 2 {
		t.Errorf("activity denies = %v, want 2", denies)
	}

	loaded := gatherFamily(t, reg, "intentgate_rules_loaded")
	if loaded == nil || loaded.GetMetric()[0].GetGauge().GetValue() != 7 {
		t.Error("intentgate_rules_loaded gauge not recorded")
	}

	if gatherFamily(t, reg, "intentgate_reloads_total") == nil {
		t.Error("intentgate_reloads_total not registered")
	}
}

func TestFirewallRecordsCheckMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	fw := newTestFirewall(t, defaultProviders(), nil, `<rules>
	  <broadcast block="true" matchall="true"/>
	</rules>`)
	fw.metrics = m

	fw.CheckBroadcast(nil, 10001, 1, "", 10002, 0)

	checks := gatherFamily(t, reg, "intentgate_checks_total")
	if checks == nil || len(checks.GetMetric()) != 1 {
		t.Fatal("expected one checks_total series")
	}
	if checks.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Error("check not counted")
	}
}
