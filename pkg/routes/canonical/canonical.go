package canonical

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/evanramirez88/resolve/pkg/canonical"
	"github.com/evanramirez88/resolve/pkg/models"
)

// Register registers canonical contact routes
func Register(g *echo.Group) {
	g.GET("/lookup", LookupByAlias)
	g.GET("/by-record", LookupByRecord)
	g.GET("/:id", GetCanonicalContact)
}

// ContactResponse is a canonical contact with its aliases
type ContactResponse struct {
	*models.CanonicalContact
	Aliases []models.EntityAlias `json:"aliases"`
}

// GetCanonicalContact gets a canonical contact with its aliases
func GetCanonicalContact(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	ctx, svc, err := ectoinject.GetContext[*canonical.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, aliases, err := svc.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ContactResponse{CanonicalContact: contact, Aliases: aliases})
}

// LookupByAlias reverse-looks-up a canonical contact by an identifier such as
// an email or phone number. The value is normalized before lookup.
func LookupByAlias(c echo.Context) error {
	ctx := c.Request().Context()

	aliasType := c.QueryParam("type")
	value := c.QueryParam("value")
	if aliasType == "" || value == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "type and value query parameters are required")
	}

	ctx, svc, err := ectoinject.GetContext[*canonical.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := svc.FindByAlias(ctx, models.AliasType(aliasType), value)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, contact)
}

// LookupByRecord returns the canonical contact a source record resolves to
func LookupByRecord(c echo.Context) error {
	ctx := c.Request().Context()

	table := c.QueryParam("table")
	id := c.QueryParam("id")
	if table == "" || id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "table and id query parameters are required")
	}

	ctx, svc, err := ectoinject.GetContext[*canonical.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	contact, err := svc.FindByLinkedRecord(ctx, models.EntityRef{Table: table, ID: id})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, contact)
}
