package tools

import (
	"context"
	"fmt"

	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/i18n"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/mark3labs/mcp-go/mcp"
)

// listing maps a read-only tool to its worker endpoint.
type listing struct {
	name string
	path string
}

var listings = []listing{
	{"data_list_articles", "/workers/getPlus.php"},
	{"data_list_departments", "/workers/getDepartments.php"},
	{"data_list_department_groups", "/workers/getDepartmentsGroups.php"},
	{"data_list_clients", "/workers/getClients.php"},
	{"data_list_declinaisons", "/workers/getDeclinaisons.php"},
	{"data_list_deliveries", "/workers/getLivreurs.php"},
	{"data_list_payments", "/workers/getPaymentModes.php"},
	{"data_list_cashboxes", "/workers/getCashbox.php"},
	{"data_list_delivery_zones", "/workers/getDeliveryZones.php"},
	{"data_list_relay_points", "/workers/getRelayDeposit.php"},
	{"data_list_discounts", "/workers/getDiscounts.php"},
	{"data_list_users", "/workers/getUsers.php"},
	{"data_list_tables", "/workers/getTables.php"},
}

// RegisterDataTools installs the read-only catalog: thirteen uniform
// listings plus the order queries. All of them require shop:read.
func RegisterDataTools(reg *guard.Registry, client *upstream.Client) {
	for _, l := range listings {
		registerListing(reg, client, l)
	}
	registerListOrders(reg, client)
	registerOrderDetail(reg, client)
}

func registerListing(reg *guard.Registry, client *upstream.Client, l listing) {
	tool := mcp.NewTool(l.name,
		mcp.WithDescription(i18n.T("tools."+l.name+".description")),
		mcp.WithString("format",
			mcp.Description("Response format: json (default), csv or html"),
			mcp.Enum("json", "csv", "html"),
		),
	)

	reg.Register(tool, guard.Policy{RequiredScopes: []string{ScopeShopRead}}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shopID, apiKey, err := resolveAuth(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		format := argString(request, "format", "json")
		if format != "json" && format != "csv" && format != "html" {
			return mcp.NewToolResultError("format must be json, csv or html"), nil
		}

		body, err := client.Get(ctx, l.path, upstream.Query(map[string]any{
			"idboutique": shopID,
			"key":        apiKey,
			"format":     format,
		}))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return workerResult(body), nil
	})
}

func registerListOrders(reg *guard.Registry, client *upstream.Client) {
	tool := mcp.NewTool("data_list_orders",
		mcp.WithDescription(i18n.T("tools.data_list_orders.description")),
		mcp.WithBoolean("validatedOrders",
			mcp.Required(),
			mcp.Description("True for validated orders, false for pending ones"),
		),
		mcp.WithString("from_date_ISO8601",
			mcp.Required(),
			mcp.Description("Range start, ISO 8601 datetime"),
		),
		mcp.WithString("to_date_ISO8601",
			mcp.Required(),
			mcp.Description("Range end, ISO 8601 datetime"),
		),
		mcp.WithNumber("filterDeliveryMethod",
			mcp.Description("Optional delivery method filter, 0 to 6"),
		),
	)

	reg.Register(tool, guard.Policy{RequiredScopes: []string{ScopeShopRead}}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shopID, apiKey, err := resolveAuth(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		validated, err := argBool(request, "validatedOrders")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		from, err := request.RequireString("from_date_ISO8601")
		if err != nil {
			return mcp.NewToolResultError("from_date_ISO8601 argument is required"), nil
		}
		to, err := request.RequireString("to_date_ISO8601")
		if err != nil {
			return mcp.NewToolResultError("to_date_ISO8601 argument is required"), nil
		}

		params := map[string]any{
			"idboutique":        shopID,
			"key":               apiKey,
			"validatedOrders":   validated,
			"from_date_ISO8601": from,
			"to_date_ISO8601":   to,
		}
		if method, set, err := argInt(request, "filterDeliveryMethod"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		} else if set {
			if method < 0 || method > 6 {
				return mcp.NewToolResultError("filterDeliveryMethod must be between 0 and 6"), nil
			}
			params["filterDeliveryMethod"] = method
		}

		body, err := client.Get(ctx, "/workers/getOrders.php", upstream.Query(params))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return workerResult(body), nil
	})
}

func registerOrderDetail(reg *guard.Registry, client *upstream.Client) {
	tool := mcp.NewTool("order_detail",
		mcp.WithDescription(i18n.T("tools.order_detail.description")),
		mcp.WithNumber("order_id",
			mcp.Required(),
			mcp.Description("Identifier of the order to fetch"),
		),
	)

	reg.Register(tool, guard.Policy{RequiredScopes: []string{ScopeShopRead}}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shopID, apiKey, err := resolveAuth(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		orderID, set, err := argInt(request, "order_id")
		if err != nil || !set {
			return mcp.NewToolResultError("order_id argument is required"), nil
		}

		body, err := client.Get(ctx, "/workers/getOrder.php", upstream.Query(map[string]any{
			"idboutique": shopID,
			"key":        apiKey,
			"order_id":   fmt.Sprint(orderID),
		}))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return workerResult(body), nil
	})
}
