package models

import (
	"github.com/shopspring/decimal"
)

const (
	BillingIntervalOneTime = "one_time"
	BillingIntervalMonthly = "monthly"
)

// Plan is a purchasable credit package. Reference data seeded by
// migration and looked up by id at checkout and verification time.
type Plan struct {
	ID              string
	Name            string
	Price           decimal.Decimal
	Credits         int64
	BillingInterval string
	Active          bool
}
