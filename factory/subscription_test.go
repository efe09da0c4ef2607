package factory_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/subtrack/billing"
	"github.com/warp/subtrack/factory"
)

func TestParseSubscription_FullDocument(t *testing.T) {
	doc := `{
		"name": "Netflix",
		"logo": "netflix",
		"price": 199.5,
		"currency": "₹",
		"billingCycle": "monthly",
		"billingCycleQuantity": 2,
		"nextPaymentDate": "2025-03-05T00:00:00.000Z",
		"category": "Entertainment",
		"subscribedDate": "2023-03-05",
		"isActive": false,
		"billingHistory": [{"date": "2025-01-05", "amount": 199.5}],
		"priceHistory": [{"date": "2024-06-01", "price": "199.50"}],
		"notification": "3 days before",
		"paymentMethod": "UPI",
		"freeTrial": true,
		"list": "Business",
		"url": "https://netflix.com"
	}`

	sub, err := factory.ParseSubscription([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "Netflix", sub.Name)
	assert.Equal(t, "199.5", sub.Price.Amount.String())
	assert.Equal(t, billing.UnitMonth, sub.Cycle)
	assert.Equal(t, 2, sub.CycleQuantity)
	assert.Equal(t, billing.NewDate(2025, time.March, 5), sub.NextPaymentDate)
	assert.Equal(t, billing.NewDate(2023, time.March, 5), sub.SubscribedDate)
	assert.False(t, sub.Active)
	assert.True(t, sub.FreeTrial)
	assert.Equal(t, billing.ListBusiness, sub.List)
	assert.Equal(t, billing.NotifyThreeDays, sub.Notification)
	require.Len(t, sub.BillingHistory, 1)
	require.Len(t, sub.PriceHistory, 1)
	assert.Equal(t, "199.5", sub.PriceHistory[0].Price.String())
}

func TestParseSubscription_Defaults(t *testing.T) {
	sub, err := factory.ParseSubscription([]byte(`{
		"name": "Gym", "price": 400, "currency": "₹",
		"billingCycle": "week", "nextPaymentDate": "2025-03-03"
	}`))
	require.NoError(t, err)

	assert.Equal(t, billing.UnitWeek, sub.Cycle)
	assert.Equal(t, 1, sub.CycleQuantity)
	assert.True(t, sub.Active)
	assert.True(t, sub.SubscribedDate.IsZero())
}

func TestParseSubscription_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"missing price", `{"name":"A","currency":"$","billingCycle":"monthly","nextPaymentDate":"2025-01-01"}`, "price"},
		{"unknown cycle", `{"name":"A","price":1,"currency":"$","billingCycle":"hourly","nextPaymentDate":"2025-01-01"}`, "billingCycle"},
		{"bad date", `{"name":"A","price":1,"currency":"$","billingCycle":"monthly","nextPaymentDate":"01/01/2025"}`, "nextPaymentDate"},
		{"negative quantity", `{"name":"A","price":1,"currency":"$","billingCycle":"monthly","billingCycleQuantity":-2,"nextPaymentDate":"2025-01-01"}`, "billing_cycle_quantity"},
		{"blank name", `{"name":"","price":1,"currency":"$","billingCycle":"monthly","nextPaymentDate":"2025-01-01"}`, "name"},
		{"bad history date", `{"name":"A","price":1,"currency":"$","billingCycle":"monthly","nextPaymentDate":"2025-01-01","billingHistory":[{"date":"x","amount":1}]}`, "billingHistory[0].date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseSubscription([]byte(tt.doc))

			var verr *billing.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, billing.IsClientError(err))
		})
	}
}

func TestParseSubscription_MalformedJSON(t *testing.T) {
	_, err := factory.ParseSubscription([]byte(`{"name":`))
	assert.Error(t, err)
}

func TestExport_ThenParseExport(t *testing.T) {
	samples := factory.Samples(billing.NewDate(2025, time.March, 1))
	at := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	data, err := json.Marshal(factory.Export(samples, at))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, factory.ExportVersion, raw["version"])
	first := raw["subscriptions"].([]any)[0].(map[string]any)
	assert.IsType(t, float64(0), first["price"], "price must be a JSON number")

	parsed, err := factory.ParseExport(data)
	require.NoError(t, err)
	require.Len(t, parsed, len(samples))
	for i := range samples {
		assert.Equal(t, samples[i].Name, parsed[i].Name)
		assert.True(t, samples[i].Price.Equal(parsed[i].Price), samples[i].Name)
		assert.Equal(t, samples[i].NextPaymentDate, parsed[i].NextPaymentDate)
		assert.Equal(t, samples[i].Active, parsed[i].Active)
	}
}

func TestParseExport_BareArray(t *testing.T) {
	subs, err := factory.ParseExport([]byte(`  [
		{"name":"A","price":1,"currency":"$","billingCycle":"monthly","nextPaymentDate":"2025-01-01"}
	]`))
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestParseExport_RejectsNewerVersionAndBadRecords(t *testing.T) {
	_, err := factory.ParseExport([]byte(`{"version": 99, "subscriptions": []}`))
	assert.ErrorContains(t, err, "newer")

	_, err = factory.ParseExport([]byte(`{"version": 1, "subscriptions": [
		{"name":"Good","price":1,"currency":"$","billingCycle":"monthly","nextPaymentDate":"2025-01-01"},
		{"name":"Bad","price":1,"currency":"$","billingCycle":"monthly"}
	]}`))
	assert.ErrorIs(t, err, billing.ErrInvalidSubscription)
	assert.ErrorContains(t, err, "subscription 1 (Bad)")
}

func TestSamples_AreValid(t *testing.T) {
	samples := factory.Samples(billing.NewDate(2025, time.January, 31))

	units := map[billing.Unit]bool{}
	for _, s := range samples {
		assert.NoError(t, s.Validate(), s.Name)
		units[s.Cycle] = true
	}
	assert.Len(t, units, len(billing.Units), "samples should cover every cycle unit")
}
