package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arishrdi/leads-aladdin-sub001/core"
	"github.com/arishrdi/leads-aladdin-sub001/core/lead"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindPagination(ctx echo.Context) core.Pagination {
	var p core.Pagination
	p.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	p.PerPage, _ = strconv.Atoi(ctx.QueryParam("per_page"))
	p.Clean()
	return p
}

// paramID parses the named path parameter; malformed IDs are reported as not found.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func queryInt64(ctx echo.Context, name string) (int64, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, core.NewFieldError(name, "must be an integer")
	}
	return id, nil
}

func queryBool(ctx echo.Context, name string) (*bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewFieldError(name, "must be a boolean")
	}
	return &b, nil
}

// queryTime parses an RFC 3339 timestamp or a date in loc.
// A date used as an upper bound is moved to the end of that day.
func queryTime(ctx echo.Context, name string, loc *time.Location, upper bool) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, val, loc)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, "must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// bindLeadFilter reads the lead list filters from the query string.
func bindLeadFilter(ctx echo.Context, loc *time.Location) (*lead.QueryFilter, error) {
	var err error
	filter := &lead.QueryFilter{
		Search: ctx.QueryParam("search"),
		Stage:  ctx.QueryParam("stage"),
	}
	for _, st := range ctx.QueryParams()["status"] {
		for _, s := range strings.Split(st, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, lead.Status(strings.ToUpper(s)))
			}
		}
	}
	if filter.BranchID, err = queryInt64(ctx, "branch_id"); err != nil {
		return nil, err
	}
	if filter.OwnerID, err = queryInt64(ctx, "owner_id"); err != nil {
		return nil, err
	}
	if filter.SourceID, err = queryInt64(ctx, "source_id"); err != nil {
		return nil, err
	}
	if filter.DateFrom, err = queryTime(ctx, "date_from", loc, false); err != nil {
		return nil, err
	}
	if filter.DateTo, err = queryTime(ctx, "date_to", loc, true); err != nil {
		return nil, err
	}
	filter.Clean()
	return filter, nil
}
