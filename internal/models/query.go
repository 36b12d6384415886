package models

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"auditorium/internal/domain"
)

const (
	DefaultPage  = 1
	DefaultLimit = 25
	MaxLimit     = 100
)

// Field is a booking attribute addressable by filters, sorts and projections.
type Field string

const (
	FieldID          Field = "id"
	FieldOwnerID     Field = "ownerId"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldStartTime   Field = "startTime"
	FieldEndTime     Field = "endTime"
	FieldStatus      Field = "status"
	FieldCreatedAt   Field = "createdAt"
	FieldUpdatedAt   Field = "updatedAt"
)

var fieldColumns = map[Field]string{
	FieldID:          "id",
	FieldOwnerID:     "owner_id",
	FieldTitle:       "title",
	FieldDescription: "description",
	FieldStartTime:   "start_time",
	FieldEndTime:     "end_time",
	FieldStatus:      "status",
	FieldCreatedAt:   "created_at",
	FieldUpdatedAt:   "updated_at",
}

// AllFields lists every booking field in storage column order.
var AllFields = []Field{
	FieldID, FieldOwnerID, FieldTitle, FieldDescription,
	FieldStartTime, FieldEndTime, FieldStatus, FieldCreatedAt, FieldUpdatedAt,
}

// Valid reports whether f names a booking field.
func (f Field) Valid() bool {
	_, ok := fieldColumns[f]
	return ok
}

// Column returns the storage column for f.
func (f Field) Column() string {
	return fieldColumns[f]
}

func (f Field) isTime() bool {
	switch f {
	case FieldStartTime, FieldEndTime, FieldCreatedAt, FieldUpdatedAt:
		return true
	}
	return false
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
)

// SQL returns the comparison operator for single-valued ops.
func (o Op) SQL() string {
	switch o {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

var filterOps = map[Field][]Op{
	FieldID:        {OpEq, OpIn},
	FieldOwnerID:   {OpEq, OpIn},
	FieldTitle:     {OpEq},
	FieldStatus:    {OpEq, OpIn},
	FieldStartTime: {OpEq, OpGt, OpGte, OpLt, OpLte},
	FieldEndTime:   {OpEq, OpGt, OpGte, OpLt, OpLte},
	FieldCreatedAt: {OpEq, OpGt, OpGte, OpLt, OpLte},
}

func opAllowed(f Field, op Op) bool {
	for _, allowed := range filterOps[f] {
		if allowed == op {
			return true
		}
	}
	return false
}

// Condition is one typed filter predicate. Values hold time.Time for time
// fields, Status for status and string otherwise.
type Condition struct {
	Field  Field
	Op     Op
	Values []any
}

// NewCondition validates field and operator and converts raw values.
func NewCondition(field Field, op Op, raw ...string) (Condition, error) {
	if _, ok := filterOps[field]; !ok {
		return Condition{}, domain.Validation("Unsupported filter field %q", field)
	}
	if !opAllowed(field, op) {
		return Condition{}, domain.Validation("Unsupported filter operator %q for %s", op, field)
	}
	if len(raw) == 0 || (op != OpIn && len(raw) != 1) {
		return Condition{}, domain.Validation("Filter %s[%s] needs exactly one value", field, op)
	}

	cond := Condition{Field: field, Op: op, Values: make([]any, 0, len(raw))}
	for _, r := range raw {
		v, err := parseValue(field, strings.TrimSpace(r))
		if err != nil {
			return Condition{}, err
		}
		cond.Values = append(cond.Values, v)
	}
	return cond, nil
}

func parseValue(field Field, raw string) (any, error) {
	switch {
	case field.isTime():
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, domain.Validation("Invalid time %q for %s; expected RFC 3339", raw, field)
		}
		return t.UTC(), nil
	case field == FieldStatus:
		s := Status(raw)
		if !s.Valid() {
			return nil, domain.Validation("Invalid status %q", raw)
		}
		return s, nil
	default:
		return raw, nil
	}
}

// SortKey orders results by one field.
type SortKey struct {
	Field Field
	Desc  bool
}

// ListQuery selects a page of bookings.
type ListQuery struct {
	Conditions []Condition
	Sort       []SortKey
	Select     []Field
	Page       int
	Limit      int
}

// Normalize fills in default paging and ordering.
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if len(q.Sort) == 0 {
		q.Sort = []SortKey{{Field: FieldCreatedAt, Desc: true}}
	}
}

// Offset is the number of records skipped before the page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Validate rejects fields or operators outside the supported set.
func (q ListQuery) Validate() error {
	for _, c := range q.Conditions {
		if _, ok := filterOps[c.Field]; !ok {
			return domain.Validation("Unsupported filter field %q", c.Field)
		}
		if !opAllowed(c.Field, c.Op) {
			return domain.Validation("Unsupported filter operator %q for %s", c.Op, c.Field)
		}
		if len(c.Values) == 0 {
			return domain.Validation("Filter %s[%s] has no value", c.Field, c.Op)
		}
	}
	for _, s := range q.Sort {
		if !s.Field.Valid() {
			return domain.Validation("Unsupported sort field %q", s.Field)
		}
	}
	for _, f := range q.Select {
		if !f.Valid() {
			return domain.Validation("Unsupported select field %q", f)
		}
	}
	return nil
}

// Columns returns the storage columns to read: the projection plus id,
// or every column when no projection is requested.
func (q ListQuery) Columns() []Field {
	if len(q.Select) == 0 {
		return AllFields
	}
	fields := []Field{FieldID}
	for _, f := range q.Select {
		if f != FieldID {
			fields = append(fields, f)
		}
	}
	return fields
}

var reservedParams = map[string]bool{"select": true, "sort": true, "page": true, "limit": true}

// ParseListQuery builds a ListQuery from request parameters such as
// status=pending, startTime[gt]=2025-01-01T00:00:00Z, status[in]=pending,approved,
// sort=-startTime,title, select=title,status, page=2, limit=10.
func ParseListQuery(values url.Values) (ListQuery, error) {
	var q ListQuery

	for _, key := range slices.Sorted(maps.Keys(values)) {
		if reservedParams[key] {
			continue
		}
		field, op := splitFilterKey(key)
		for _, v := range values[key] {
			raw := []string{v}
			if op == OpIn {
				raw = splitList(v)
			}
			cond, err := NewCondition(field, op, raw...)
			if err != nil {
				return ListQuery{}, err
			}
			q.Conditions = append(q.Conditions, cond)
		}
	}

	for _, s := range splitList(values.Get("sort")) {
		key := SortKey{Field: Field(s)}
		if strings.HasPrefix(s, "-") {
			key = SortKey{Field: Field(s[1:]), Desc: true}
		}
		q.Sort = append(q.Sort, key)
	}
	for _, s := range splitList(values.Get("select")) {
		q.Select = append(q.Select, Field(s))
	}

	var err error
	if q.Page, err = parsePositive(values.Get("page"), "page"); err != nil {
		return ListQuery{}, err
	}
	if q.Limit, err = parsePositive(values.Get("limit"), "limit"); err != nil {
		return ListQuery{}, err
	}

	if err := q.Validate(); err != nil {
		return ListQuery{}, err
	}
	q.Normalize()
	return q, nil
}

func splitFilterKey(key string) (Field, Op) {
	open := strings.IndexByte(key, '[')
	if open < 0 || !strings.HasSuffix(key, "]") {
		return Field(key), OpEq
	}
	return Field(key[:open]), Op(key[open+1 : len(key)-1])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePositive(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation("Invalid %s %q", name, raw)
	}
	return n, nil
}

// PageRef points at another page of the same query.
type PageRef struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Pagination links to the neighbouring pages when they exist.
type Pagination struct {
	Next *PageRef `json:"next,omitempty"`
	Prev *PageRef `json:"prev,omitempty"`
}

// Page is one slice of a list result.
type Page struct {
	Items      []Booking
	Fields     []Field
	Total      int
	Page       int
	Limit      int
	Pagination Pagination
}

// NewPage wraps items with pagination metadata derived from total.
func NewPage(q ListQuery, items []Booking, total int) *Page {
	p := &Page{
		Items:  items,
		Fields: q.Select,
		Total:  total,
		Page:   q.Page,
		Limit:  q.Limit,
	}
	if q.Page*q.Limit < total {
		p.Pagination.Next = &PageRef{Page: q.Page + 1, Limit: q.Limit}
	}
	if q.Offset() > 0 {
		p.Pagination.Prev = &PageRef{Page: q.Page - 1, Limit: q.Limit}
	}
	return p
}

// Project renders only the requested fields of b; id is always included.
func (b *Booking) Project(fields []Field) map[string]any {
	out := map[string]any{string(FieldID): b.ID}
	for _, f := range fields {
		switch f {
		case FieldOwnerID:
			out[string(f)] = b.OwnerID
			if b.Owner != nil {
				out["user"] = b.Owner
			}
		case FieldTitle:
			out[string(f)] = b.Title
		case FieldDescription:
			out[string(f)] = b.Description
		case FieldStartTime:
			out[string(f)] = b.StartTime
		case FieldEndTime:
			out[string(f)] = b.EndTime
		case FieldStatus:
			out[string(f)] = b.Status
		case FieldCreatedAt:
			out[string(f)] = b.CreatedAt
		case FieldUpdatedAt:
			out[string(f)] = b.UpdatedAt
		}
	}
	return out
}
