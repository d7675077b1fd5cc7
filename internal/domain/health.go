package domain

// ============================================================
// Health & Dashboard API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LatencyMs     int64   `json:"latencyMs"`
	UptimePercent float64 `json:"uptimePercent"`
	LastChecked   string  `json:"lastChecked"`
}

// DashboardOverview is returned by GET /v1/dashboard: the funnel's headline
// numbers plus the current learning statistics.
type DashboardOverview struct {
	TotalCustomers     int            `json:"total_customers"`
	TotalConversations int            `json:"total_conversations"`
	TotalSales         int            `json:"total_sales"`
	TotalRevenue       float64        `json:"total_revenue"`
	RecentCustomers    int            `json:"recent_customers"` // last 7 days
	RecentSales        int            `json:"recent_sales"`     // last 7 days
	ConversionRate     float64        `json:"conversion_rate"`  // percent
	LearningStats      *LearningStats `json:"learning_stats"`

	// LatestSales lista as últimas vendas fechadas, mais recente primeiro.
	LatestSales []Sale `json:"latest_sales"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
