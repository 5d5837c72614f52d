package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/enregistreuse/caisse-mcp/pkg/guard"
	"github.com/enregistreuse/caisse-mcp/pkg/i18n"
	"github.com/enregistreuse/caisse-mcp/pkg/upstream"
	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
)

// SaleClient carries the optional customer record attached to an
// order. Field names follow the worker API.
type SaleClient struct {
	Nom                string `json:"nom,omitempty"`
	Prenom             string `json:"prenom,omitempty"`
	Email              string `json:"email,omitempty"`
	Telephone          string `json:"telephone,omitempty"`
	AdresseLigne1      string `json:"adresseligne1,omitempty"`
	AdresseLigne2      string `json:"adresseligne2,omitempty"`
	CommentaireAdresse string `json:"commentaireadresse,omitempty"`
	CodePostal         string `json:"codepostal,omitempty"`
	Ville              string `json:"ville,omitempty"`
	Pays               string `json:"pays,omitempty"`
	NumTVA             string `json:"numtva,omitempty"`
	RCS                string `json:"rcs,omitempty"`
	CodeBarre          string `json:"codeBarre,omitempty"`
	Telephone2         string `json:"telephone2,omitempty"`
	Lat                string `json:"lat,omitempty"`
	Lng                string `json:"lng,omitempty"`
}

// SaleItem is one order line. Type selects which fields apply:
// "catalog" references a product, "dept" prices a free line against a
// department, "free" is an untyped amount.
type SaleItem struct {
	Type          string   `json:"type"                    validate:"required,oneof=catalog dept free"`
	ProductID     int      `json:"productId,omitempty"     validate:"omitempty,gt=0"`
	Quantity      float64  `json:"quantity,omitempty"      validate:"omitempty,gt=0"`
	TitleOverride string   `json:"titleOverride,omitempty"`
	PriceOverride *float64 `json:"priceOverride,omitempty" validate:"omitempty,gte=0"`
	Declinaisons  []int    `json:"declinaisons,omitempty"  validate:"omitempty,max=5,dive,gt=0"`
	DepartmentID  int      `json:"departmentId,omitempty"  validate:"omitempty,gt=0"`
	Title         string   `json:"title,omitempty"`
	Price         *float64 `json:"price,omitempty"         validate:"omitempty,gte=0"`
}

// SalesCreateInput is the sales_create payload. The shop identifier
// and API key never appear here: they come from the session.
type SalesCreateInput struct {
	IDUser         *int        `json:"idUser,omitempty"`
	Payment        *int        `json:"payment,omitempty"        validate:"omitempty,gte=-2"`
	DeliveryMethod *int        `json:"deliveryMethod,omitempty" validate:"omitempty,gte=0,lte=6"`
	IDTable        *int        `json:"idtable,omitempty"`
	IDCaisse       *int        `json:"idcaisse,omitempty"`
	NumCouverts    *int        `json:"numcouverts,omitempty"`
	PublicComment  string      `json:"publicComment,omitempty"`
	PrivateComment string      `json:"privateComment,omitempty"`
	PagerNum       *int        `json:"pagerNum,omitempty"`
	IDClient       *int        `json:"idClient,omitempty"`
	Client         *SaleClient `json:"client,omitempty"`
	Items          []SaleItem  `json:"items"                    validate:"required,min=1,dive"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`
}

func (i SaleItem) check() error {
	switch i.Type {
	case "catalog":
		if i.ProductID <= 0 {
			return fmt.Errorf("catalog item requires productId")
		}
	case "dept":
		if i.DepartmentID <= 0 || i.Title == "" || i.Price == nil {
			return fmt.Errorf("dept item requires departmentId, title and price")
		}
	case "free":
		if i.Price == nil {
			return fmt.Errorf("free item requires price")
		}
	}
	return nil
}

// RegisterSalesTools installs sales_create, the only mutating tool.
// It requires the sales:write scope on top of authentication.
func RegisterSalesTools(reg *guard.Registry, client *upstream.Client) {
	validate := validator.New()

	tool := mcp.NewTool("sales_create",
		mcp.WithDescription(i18n.T("tools.sales_create.description")),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Order lines: catalog, dept or free items"),
		),
		mcp.WithNumber("payment",
			mcp.Description("Payment mode id, -1 for unpaid, -2 for on-account"),
		),
		mcp.WithNumber("deliveryMethod",
			mcp.Description("Delivery method, 0 to 6"),
		),
		mcp.WithNumber("idUser", mcp.Description("Acting user id")),
		mcp.WithNumber("idtable", mcp.Description("Table id")),
		mcp.WithNumber("idcaisse", mcp.Description("Cashbox id")),
		mcp.WithNumber("numcouverts", mcp.Description("Number of covers")),
		mcp.WithNumber("pagerNum", mcp.Description("Pager number")),
		mcp.WithNumber("idClient", mcp.Description("Existing client id")),
		mcp.WithString("publicComment", mcp.Description("Comment printed on the ticket")),
		mcp.WithString("privateComment", mcp.Description("Internal comment")),
		mcp.WithObject("client", mcp.Description("Inline client record, alternative to idClient")),
		mcp.WithString("idempotencyKey", mcp.Description("Client-chosen key to deduplicate retries")),
	)

	reg.Register(tool, guard.Policy{RequiredScopes: []string{ScopeSalesWrite}}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		shopID, apiKey, err := resolveAuth(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		input, err := decodeSalesInput(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := validate.Struct(input); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid order: %v", err)), nil
		}
		for _, item := range input.Items {
			if err := item.check(); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid order: %v", err)), nil
			}
		}

		payload := map[string]any{
			"idboutique": shopID,
			"key":        apiKey,
		}
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		for key, value := range fields {
			payload[key] = value
		}

		body, err := client.PostJSON(ctx, "/workers/createOrder.php", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return workerResult(body), nil
	})
}

// decodeSalesInput converts the raw argument map into the typed input.
// Clients sometimes send numeric enums as strings, so payment and
// deliveryMethod are normalized first.
func decodeSalesInput(args map[string]any) (*SalesCreateInput, error) {
	normalized := make(map[string]any, len(args))
	for key, value := range args {
		normalized[key] = value
	}
	for _, key := range []string{"payment", "deliveryMethod"} {
		if s, ok := normalized[key].(string); ok {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("%s must be a number", key)
			}
			normalized[key] = n
		}
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	var input SalesCreateInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return &input, nil
}
