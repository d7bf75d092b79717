package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No token
	SecurityActor                       // Staff token required, actor id recorded for audit
)

// EndpointSecurityConfig maps HTTP route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"Health": SecurityPublic,

	"GetEligibility":   SecurityActor,
	"GetCreditProfile": SecurityActor,
	"GrantCredit":      SecurityActor,
	"FreezeCredit":     SecurityActor,
	"UnfreezeCredit":   SecurityActor,
	"AdjustCredit":     SecurityActor,
	"ListTransactions": SecurityActor,
	"VerifyLedger":     SecurityActor,

	"UseCreditForPurchase": SecurityActor,

	"GeneratePaymentBatch":     SecurityActor,
	"GetPaymentBatch":          SecurityActor,
	"ListBatchRecords":         SecurityActor,
	"ListFarmerPayments":       SecurityActor,
	"ProcessPaymentBatch":      SecurityActor,
	"BatchDeductCollectorFees": SecurityActor,
	"MarkCollectionAsPaid":     SecurityActor,
}

// GetSecurityLevel returns the security level for a route name.
// Unknown routes require a token.
func GetSecurityLevel(route string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[route]; ok {
		return level
	}
	return SecurityActor
}
