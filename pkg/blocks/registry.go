package blocks

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// VariantHandler knows everything kind-specific about one block variant.
type VariantHandler interface {
	Kind() Kind
	// Collection names the physical collection the variant is stored in.
	Collection() string
	// Decode parses a stored or wire payload.
	Decode(data []byte) (Payload, error)
	Encode(p Payload) ([]byte, error)
	// Prepare normalizes sub-item ordering and defaults, then validates.
	Prepare(p Payload) error
	// PlainText returns the readable prose of the payload.
	PlainText(p Payload) string
	// Assets counts embedded media items that take time to view.
	Assets(p Payload) int
	// FileRefs lists media file identifiers held by the payload.
	FileRefs(p Payload) []string
}

// Registry maps kind tags to their handlers. It is the single point of
// polymorphic dispatch in the engine.
type Registry struct {
	handlers map[Kind]VariantHandler
}

// NewRegistry creates a registry holding the given handlers.
func NewRegistry(handlers ...VariantHandler) (*Registry, error) {
	r := &Registry{handlers: make(map[Kind]VariantHandler, len(handlers))}
	for _, h := range handlers {
		if _, dup := r.handlers[h.Kind()]; dup {
			return nil, fmt.Errorf("duplicate handler for kind %q", h.Kind())
		}
		r.handlers[h.Kind()] = h
	}
	return r, nil
}

// DefaultRegistry returns a registry with a handler for every kind in AllKinds.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultHandlers()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the handler registered for kind.
func (r *Registry) Resolve(kind Kind) (VariantHandler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, kind)
	}
	return h, nil
}

// Check reports every kind of the fixed enumeration that has no handler.
func (r *Registry) Check() error {
	var missing []string
	for _, k := range allKinds {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no handler for %s", ErrUnknownVariant, strings.Join(missing, ", "))
	}
	return nil
}

// Collections enumerates the collections of all registered kinds, in
// canonical kind order.
func (r *Registry) Collections() []string {
	out := make([]string, 0, len(r.handlers))
	for _, k := range r.Kinds() {
		out = append(out, r.handlers[k].Collection())
	}
	return out
}

// Kinds returns the registered kinds in canonical order. Kinds outside the
// fixed enumeration sort last by name.
func (r *Registry) Kinds() []Kind {
	rank := make(map[Kind]int, len(allKinds))
	for i, k := range allKinds {
		rank[k] = i
	}
	out := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// DecodePayload decodes wire JSON into the typed payload for kind.
func (r *Registry) DecodePayload(kind Kind, raw []byte) (Payload, error) {
	h, err := r.Resolve(kind)
	if err != nil {
		return nil, err
	}
	p, err := h.Decode(raw)
	if err != nil {
		return nil, invalid(kind, "payload", err.Error())
	}
	return p, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// variant is the generic handler behind every built-in kind. P is the payload
// struct and PP its pointer, which implements Payload.
type variant[P any, PP interface {
	*P
	Payload
}] struct {
	kind       Kind
	collection string
	normalize  func(PP)
	check      func(PP) error
	text       func(PP) []string
	assets     func(PP) int
	files      func(PP) []string
}

func (v *variant[P, PP]) Kind() Kind { return v.kind }

func (v *variant[P, PP]) Collection() string {
	if v.collection != "" {
		return v.collection
	}
	return string(v.kind) + "_blocks"
}

func (v *variant[P, PP]) Decode(data []byte) (Payload, error) {
	var p P
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", v.kind, err)
		}
	}
	return PP(&p), nil
}

func (v *variant[P, PP]) Encode(p Payload) ([]byte, error) {
	typed, err := v.typed(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(typed)
}

func (v *variant[P, PP]) Prepare(p Payload) error {
	typed, err := v.typed(p)
	if err != nil {
		return err
	}
	if v.normalize != nil {
		v.normalize(typed)
	}
	if err := validate.Struct(typed); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			fe := vErrs[0]
			return invalid(v.kind, fieldPath(fe.Namespace()), ruleReason(fe))
		}
		return invalid(v.kind, "payload", err.Error())
	}
	if v.check != nil {
		return v.check(typed)
	}
	return nil
}

func (v *variant[P, PP]) PlainText(p Payload) string {
	typed, err := v.typed(p)
	if err != nil || v.text == nil {
		return ""
	}
	var parts []string
	for _, s := range v.text(typed) {
		if t := htmlText(s); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (v *variant[P, PP]) Assets(p Payload) int {
	typed, err := v.typed(p)
	if err != nil || v.assets == nil {
		return 0
	}
	return v.assets(typed)
}

func (v *variant[P, PP]) FileRefs(p Payload) []string {
	typed, err := v.typed(p)
	if err != nil || v.files == nil {
		return nil
	}
	return v.files(typed)
}

func (v *variant[P, PP]) typed(p Payload) (PP, error) {
	typed, ok := p.(PP)
	if !ok || (*P)(typed) == nil {
		var zero PP
		return zero, invalid(v.kind, "payload", fmt.Sprintf("payload of type %T does not match kind", p))
	}
	return typed, nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleReason(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed %q rule (%s)", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed %q rule", fe.Tag())
}

// renumber makes sub-item orders dense and zero-based, keeping the relative
// order the caller supplied.
func renumber[T any](items []T, order func(*T) *int) {
	sort.SliceStable(items, func(i, j int) bool {
		return *order(&items[i]) < *order(&items[j])
	})
	for i := range items {
		*order(&items[i]) = i
	}
}
