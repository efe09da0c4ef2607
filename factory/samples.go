package factory

import (
	"github.com/shopspring/decimal"
	"github.com/warp/subtrack/billing"
)

// Samples returns a demo data set whose next payment dates sit around today,
// covering every cycle unit, a month-end anchor, a free trial and a
// cancelled subscription.
func Samples(today billing.Date) []billing.Subscription {
	inr := func(v int64) billing.Money { return billing.Money{Amount: decimal.NewFromInt(v), Currency: "₹"} }
	usd := func(v string) billing.Money {
		return billing.Money{Amount: decimal.RequireFromString(v), Currency: "$"}
	}
	month := billing.EndOfMonth(today.Year(), today.Month())

	return []billing.Subscription{
		{
			Name: "Netflix", Logo: "netflix", Price: inr(649),
			Cycle: billing.UnitMonth, CycleQuantity: 1, NextPaymentDate: today.AddDays(3),
			Category: "Entertainment", SubscribedDate: today.AddMonthsClamped(-14), Active: true,
			Notification: billing.NotifyThreeDays, PaymentMethod: "Credit Card", List: billing.ListPersonal,
			URL: "https://www.netflix.com",
			PriceHistory: []billing.PriceRecord{
				{Date: today.AddMonthsClamped(-14), Price: decimal.NewFromInt(499)},
				{Date: today.AddMonthsClamped(-5), Price: decimal.NewFromInt(649)},
			},
		},
		{
			Name: "Spotify", Logo: "spotify", Price: inr(1189),
			Cycle: billing.UnitYear, CycleQuantity: 1, NextPaymentDate: today.AddMonthsClamped(5),
			Category: "Entertainment", SubscribedDate: today.AddMonthsClamped(-31), Active: true,
			Notification: billing.NotifyOneWeek, PaymentMethod: "UPI", List: billing.ListPersonal,
		},
		{
			Name: "iCloud+", Logo: "icloud", Price: usd("2.99"),
			Cycle: billing.UnitMonth, CycleQuantity: 1, NextPaymentDate: month,
			Category: "Productivity", SubscribedDate: month.AddMonthsClamped(-20), Active: true,
			Notification: billing.NotifyOneDay, PaymentMethod: "Apple Pay", List: billing.ListPersonal,
		},
		{
			Name: "Gym", Price: inr(400),
			Cycle: billing.UnitWeek, CycleQuantity: 1, NextPaymentDate: today.AddDays(2),
			Category: "Sports", SubscribedDate: today.AddDays(-90), Active: true,
			Notification: billing.NotifyNone, PaymentMethod: "Cash", List: billing.ListPersonal,
		},
		{
			Name: "Adobe Creative Cloud", Logo: "adobe", Price: usd("59.99"),
			Cycle: billing.UnitMonth, CycleQuantity: 1, NextPaymentDate: today.AddDays(12),
			Category: "Photography", SubscribedDate: today.AddMonthsClamped(-8), Active: true,
			Notification: billing.NotifyOneWeek, PaymentMethod: "Company Card", List: billing.ListBusiness,
			URL: "https://www.adobe.com",
		},
		{
			Name: "Domain renewal", Price: usd("12.00"),
			Cycle: billing.UnitYear, CycleQuantity: 2, NextPaymentDate: today.AddMonthsClamped(9),
			Category: "Other", Active: true,
			Notification: billing.NotifyOneMonth, List: billing.ListBusiness,
		},
		{
			Name: "Newspaper", Price: inr(15),
			Cycle: billing.UnitDay, CycleQuantity: 1, NextPaymentDate: today,
			Category: "Newsletter", Active: true, List: billing.ListPersonal,
		},
		{
			Name: "YouTube Premium", Logo: "youtube", Price: inr(149),
			Cycle: billing.UnitMonth, CycleQuantity: 1, NextPaymentDate: today.AddDays(20),
			Category: "Entertainment", SubscribedDate: today.AddDays(-10), Active: true, FreeTrial: true,
			Notification: billing.NotifyOneDay, List: billing.ListPersonal,
		},
		{
			Name: "Disney+ Hotstar", Logo: "hotstar", Price: inr(299),
			Cycle: billing.UnitMonth, CycleQuantity: 3, NextPaymentDate: today.AddDays(-40),
			Category: "Entertainment", SubscribedDate: today.AddMonthsClamped(-12), Active: false,
			List: billing.ListPersonal,
		},
	}
}
