package firewall

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/intent-gate/intentgate/internal/domain/intent"
)

// Rule file grammar: a single <rules> root whose children are
// <activity|service|broadcast|provider|package> rule elements. Unknown
// top-level tags are skipped silently. Errors inside a single rule discard
// that rule only; malformed XML or a missing root discards the file.

const (
	tagRules           = "rules"
	tagIntentFilter    = "intent-filter"
	tagComponentFilter = "component-filter"

	attrName        = "name"
	attrPackageName = "pkgName"
	attrBlock       = "block"
	attrLog         = "log"
	attrLogQuery    = "logquery"
	attrMatchAll    = "matchall"
	attrBlockQuery  = "blockquery"
)

// FileRules is the outcome of parsing one rule file: the rules that
// survived, plus the per-rule errors that discarded the rest.
type FileRules struct {
	Rules      []*Rule
	RuleErrors []error
}

// ParseRules reads one rule file from r. The returned error is file-level
// (malformed XML, missing <rules> root, I/O failure) and means the whole
// file must be discarded; per-rule failures are collected in
// FileRules.RuleErrors and do not affect sibling rules.
func ParseRules(r io.Reader, source string) (*FileRules, error) {
	dec := xml.NewDecoder(r)

	root, err := nextStartElement(dec)
	if err != nil {
		return nil, fmt.Errorf("%s: no root element: %w", source, err)
	}
	if root.Name.Local != tagRules {
		return nil, fmt.Errorf("%s: expected <%s> root, found <%s>", source, tagRules, root.Name.Local)
	}

	out := &FileRules{}
	index := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			kind, known := intent.ParseKind(t.Name.Local)
			if !known {
				// Unknown top-level tags are ignored, but the element
				// must still be well formed.
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("%s: %w", source, err)
				}
				continue
			}
			node, err := readNode(dec, t)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", source, err)
			}
			rule, ruleErr := buildRule(kind, node, source, index)
			index++
			if ruleErr != nil {
				out.RuleErrors = append(out.RuleErrors,
					fmt.Errorf("%s: rule %d (<%s>): %w", source, index, t.Name.Local, ruleErr))
				continue
			}
			out.Rules = append(out.Rules, rule)
		case xml.EndElement:
			if t.Name.Local == tagRules {
				return out, nil
			}
		}
	}
}

// nextStartElement advances the decoder to the first start element.
func nextStartElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// xmlNode is one fully-read element: tag, attributes, child elements.
// Reading a whole rule element up front keeps the token stream in sync
// when a semantic error discards the rule.
type xmlNode struct {
	tag      string
	attrs    []xml.Attr
	children []*xmlNode
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) hasAttr(name string) bool {
	for _, a := range n.attrs {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// checkAttrs errors on any attribute outside the allowed set.
func (n *xmlNode) checkAttrs(allowed ...string) error {
	for _, a := range n.attrs {
		found := false
		for _, name := range allowed {
			if a.Name.Local == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("<%s>: unknown attribute %q", n.tag, a.Name.Local)
		}
	}
	return nil
}

func readNode(dec *xml.Decoder, start xml.StartElement) (*xmlNode, error) {
	node := &xmlNode{tag: start.Name.Local, attrs: start.Attr}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := readNode(dec, t)
			if err != nil {
				return nil, err
			}
			node.children = append(node.children, child)
		case xml.EndElement:
			return node, nil
		}
	}
}

// parseBool follows the rule file convention: "true" case-insensitive is
// true, anything else is false.
func parseBool(v string) bool {
	return strings.EqualFold(v, "true")
}

// buildRule interprets a rule element node. Any error discards this rule
// only.
func buildRule(kind intent.Kind, node *xmlNode, source string, index int) (*Rule, error) {
	rule := &Rule{
		kind:        kind,
		packageName: node.attr(attrPackageName),
		block:       parseBool(node.attr(attrBlock)),
		log:         parseBool(node.attr(attrLog)),
		logQuery:    parseBool(node.attr(attrLogQuery)),
		matchAll:    parseBool(node.attr(attrMatchAll)),
		blockQuery:  parseBool(node.attr(attrBlockQuery)),
		predicate:   &And{},
		source:      source,
	}

	for _, child := range node.children {
		switch child.tag {
		case tagIntentFilter:
			if rule.matchAll {
				return nil, fmt.Errorf("<%s> not allowed on a matchall rule", tagIntentFilter)
			}
			f, err := parseIntentFilter(child)
			if err != nil {
				return nil, err
			}
			rule.intentFilters = append(rule.intentFilters, f)
		case tagComponentFilter:
			if rule.matchAll {
				return nil, fmt.Errorf("<%s> not allowed on a matchall rule", tagComponentFilter)
			}
			name := child.attr(attrName)
			if name == "" {
				return nil, fmt.Errorf("<%s>: component name must be specified", tagComponentFilter)
			}
			c := intent.UnflattenFromString(name)
			if c == nil {
				return nil, fmt.Errorf("<%s>: invalid component name %q", tagComponentFilter, name)
			}
			rule.componentFilters = append(rule.componentFilters, c)
		default:
			p, err := parsePredicate(child)
			if err != nil {
				return nil, err
			}
			rule.predicate.Children = append(rule.predicate.Children, p)
		}
	}

	rule.fingerprint = ruleFingerprint(rule, source, index)
	return rule, nil
}

// ruleFingerprint derives a stable id for logs and audit records. Two
// loads of unchanged files produce identical fingerprints.
func ruleFingerprint(r *Rule, source string, index int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(source)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(index))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(r.kind.String())
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(r.packageName)
	for _, b := range []bool{r.block, r.log, r.blockQuery, r.logQuery, r.matchAll} {
		if b {
			_, _ = h.WriteString("1")
		} else {
			_, _ = h.WriteString("0")
		}
	}
	return h.Sum64()
}

// predicateFactories is the factory table keyed by element tag. Populated
// in init because the combinator entries recurse into parsePredicate.
var predicateFactories map[string]func(*xmlNode) (Predicate, error)

func init() {
	predicateFactories = map[string]func(*xmlNode) (Predicate, error){
		"and": parseAnd,
		"or":  parseOr,
		"not": parseNot,

		"action":            stringLeaf(AttrAction),
		"component":         parseComponent,
		"component-name":    stringLeaf(AttrComponentName),
		"component-package": stringLeaf(AttrComponentPackage),
		"data":              stringLeaf(AttrData),
		"host":              stringLeaf(AttrHost),
		"mime-type":         stringLeaf(AttrMimeType),
		"scheme":            stringLeaf(AttrScheme),
		"path":              stringLeaf(AttrPath),
		"ssp":               stringLeaf(AttrSSP),

		"category":          parseCategory,
		"port":              parsePort,
		"sender":            parseSender,
		"target":            parseTarget,
		"sender-package":    parseSenderPackage,
		"target-package":    parseTargetPackage,
		"sender-permission": parseSenderPermission,
		"target-permission": parseTargetPermission,
		tagIntentFilter:     parseFilterPredicate,
		"provisioned":       parseProvisioned,
	}
}

// parsePredicate dispatches on the element tag through the factory table.
func parsePredicate(node *xmlNode) (Predicate, error) {
	factory, ok := predicateFactories[node.tag]
	if !ok {
		return nil, fmt.Errorf("unknown element in filter list: <%s>", node.tag)
	}
	return factory(node)
}

func parseChildren(node *xmlNode) ([]Predicate, error) {
	children := make([]Predicate, 0, len(node.children))
	for _, c := range node.children {
		p, err := parsePredicate(c)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}
	return children, nil
}

func parseAnd(node *xmlNode) (Predicate, error) {
	children, err := parseChildren(node)
	if err != nil {
		return nil, err
	}
	return &And{Children: children}, nil
}

func parseOr(node *xmlNode) (Predicate, error) {
	children, err := parseChildren(node)
	if err != nil {
		return nil, err
	}
	return &Or{Children: children}, nil
}

func parseNot(node *xmlNode) (Predicate, error) {
	children, err := parseChildren(node)
	if err != nil {
		return nil, err
	}
	if len(children) != 1 {
		return nil, fmt.Errorf("<not> requires exactly one child, found %d", len(children))
	}
	return &Not{Child: children[0]}, nil
}

// matchModeAttrs maps the match-mode attribute names of string leaves.
var matchModeAttrs = []struct {
	name string
	mode MatchMode
}{
	{"equals", ModeEquals},
	{"starts-with", ModeStartsWith},
	{"contains", ModeContains},
	{"pattern", ModePattern},
	{"regex", ModeRegex},
}

// parseStringMatcher reads the single match-mode attribute of a string
// leaf. Zero or more than one mode attribute is a parse error.
func parseStringMatcher(node *xmlNode) (*StringMatcher, error) {
	var (
		found   bool
		mode    MatchMode
		literal string
	)
	for _, m := range matchModeAttrs {
		if !node.hasAttr(m.name) {
			continue
		}
		if found {
			return nil, fmt.Errorf("<%s>: multiple match modes specified", node.tag)
		}
		found = true
		mode = m.mode
		literal = node.attr(m.name)
	}
	if !found {
		return nil, fmt.Errorf("<%s>: missing match mode (one of equals, starts-with, contains, pattern, regex)", node.tag)
	}
	return NewStringMatcher(mode, literal)
}

// stringLeaf builds the factory for one of the string-match leaves.
func stringLeaf(attr StringAttr) func(*xmlNode) (Predicate, error) {
	return func(node *xmlNode) (Predicate, error) {
		if err := node.checkAttrs("equals", "starts-with", "contains", "pattern", "regex"); err != nil {
			return nil, err
		}
		m, err := parseStringMatcher(node)
		if err != nil {
			return nil, err
		}
		return &StringPredicate{Attr: attr, Matcher: m}, nil
	}
}

// parseComponent handles the <component> tag, which carries two shapes:
// with a name attribute it is the exact fully-qualified component match;
// with a match-mode attribute it is the string leaf over the flattened
// component.
func parseComponent(node *xmlNode) (Predicate, error) {
	if node.hasAttr(attrName) {
		if err := node.checkAttrs(attrName); err != nil {
			return nil, err
		}
		c := intent.UnflattenFromString(node.attr(attrName))
		if c == nil {
			return nil, fmt.Errorf("<component>: invalid component name %q", node.attr(attrName))
		}
		return &ComponentPredicate{Component: c}, nil
	}
	return stringLeaf(AttrComponent)(node)
}

func parseCategory(node *xmlNode) (Predicate, error) {
	if err := node.checkAttrs(attrName); err != nil {
		return nil, err
	}
	name := node.attr(attrName)
	if name == "" {
		return nil, fmt.Errorf("<category>: missing name")
	}
	return &CategoryPredicate{Category: name}, nil
}

// parsePort accepts either an exact port (equals) or a range (min/max,
// defaulting to the full port range).
func parsePort(node *xmlNode) (Predicate, error) {
	if err := node.checkAttrs("equals", "min", "max"); err != nil {
		return nil, err
	}
	if node.hasAttr("equals") {
		if node.hasAttr("min") || node.hasAttr("max") {
			return nil, fmt.Errorf("<port>: equals cannot be combined with min/max")
		}
		p, err := parsePortValue(node.attr("equals"))
		if err != nil {
			return nil, err
		}
		return &PortPredicate{Low: p, High: p}, nil
	}
	low, high := 0, 65535
	var err error
	if node.hasAttr("min") {
		if low, err = parsePortValue(node.attr("min")); err != nil {
			return nil, err
		}
	}
	if node.hasAttr("max") {
		if high, err = parsePortValue(node.attr("max")); err != nil {
			return nil, err
		}
	}
	if low > high {
		return nil, fmt.Errorf("<port>: min %d exceeds max %d", low, high)
	}
	return &PortPredicate{Low: low, High: high}, nil
}

func parsePortValue(v string) (int, error) {
	p, err := strconv.Atoi(v)
	if err != nil || p < 0 || p > 65535 {
		return 0, fmt.Errorf("<port>: invalid port %q", v)
	}
	return p, nil
}

func parseCallerClass(node *xmlNode) (CallerClass, error) {
	if err := node.checkAttrs("type"); err != nil {
		return 0, err
	}
	switch node.attr("type") {
	case "signature":
		return ClassSignature, nil
	case "system":
		return ClassSystem, nil
	case "user":
		return ClassUser, nil
	default:
		return 0, fmt.Errorf("<%s>: invalid type %q", node.tag, node.attr("type"))
	}
}

func parseSender(node *xmlNode) (Predicate, error) {
	class, err := parseCallerClass(node)
	if err != nil {
		return nil, err
	}
	return &SenderPredicate{Class: class}, nil
}

func parseTarget(node *xmlNode) (Predicate, error) {
	class, err := parseCallerClass(node)
	if err != nil {
		return nil, err
	}
	return &TargetPredicate{Class: class}, nil
}

func requireName(node *xmlNode) (string, error) {
	if err := node.checkAttrs(attrName); err != nil {
		return "", err
	}
	name := node.attr(attrName)
	if name == "" {
		return "", fmt.Errorf("<%s>: missing name", node.tag)
	}
	return name, nil
}

func parseSenderPackage(node *xmlNode) (Predicate, error) {
	name, err := requireName(node)
	if err != nil {
		return nil, err
	}
	return &SenderPackagePredicate{PackageName: name}, nil
}

func parseTargetPackage(node *xmlNode) (Predicate, error) {
	name, err := requireName(node)
	if err != nil {
		return nil, err
	}
	return &TargetPackagePredicate{PackageName: name}, nil
}

func parseSenderPermission(node *xmlNode) (Predicate, error) {
	name, err := requireName(node)
	if err != nil {
		return nil, err
	}
	return &SenderPermissionPredicate{Permission: name}, nil
}

func parseTargetPermission(node *xmlNode) (Predicate, error) {
	name, err := requireName(node)
	if err != nil {
		return nil, err
	}
	return &TargetPermissionPredicate{Permission: name}, nil
}

func parseProvisioned(node *xmlNode) (Predicate, error) {
	if err := node.checkAttrs("value"); err != nil {
		return nil, err
	}
	return &ProvisionedPredicate{Want: parseBool(node.attr("value"))}, nil
}

func parseFilterPredicate(node *xmlNode) (Predicate, error) {
	f, err := parseIntentFilter(node)
	if err != nil {
		return nil, err
	}
	return &FilterPredicate{Filter: f}, nil
}

// parseIntentFilter reads an <intent-filter> element: action and category
// children plus <data> constraints.
func parseIntentFilter(node *xmlNode) (*intent.Filter, error) {
	f := &intent.Filter{}
	for _, child := range node.children {
		switch child.tag {
		case "action":
			name := child.attr(attrName)
			if name == "" {
				return nil, fmt.Errorf("<intent-filter>: <action> missing name")
			}
			f.AddAction(name)
		case "category":
			name := child.attr(attrName)
			if name == "" {
				return nil, fmt.Errorf("<intent-filter>: <category> missing name")
			}
			f.AddCategory(name)
		case "data":
			if err := parseFilterData(f, child); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("<intent-filter>: unknown element <%s>", child.tag)
		}
	}
	return f, nil
}

func parseFilterData(f *intent.Filter, node *xmlNode) error {
	if err := node.checkAttrs("scheme", "host", "port", "path", "pathPrefix",
		"pathPattern", "mimeType", "ssp", "sspPrefix", "sspPattern"); err != nil {
		return err
	}
	if v := node.attr("scheme"); v != "" {
		f.AddDataScheme(v)
	}
	if host := node.attr("host"); host != "" {
		if err := f.AddDataAuthority(host, node.attr("port")); err != nil {
			return fmt.Errorf("<data>: %w", err)
		}
	} else if node.hasAttr("port") {
		return fmt.Errorf("<data>: port requires a host")
	}
	pathSpecs := []struct {
		attrName string
		typ      intent.PatternType
	}{
		{"path", intent.PatternLiteral},
		{"pathPrefix", intent.PatternPrefix},
		{"pathPattern", intent.PatternGlob},
	}
	for _, spec := range pathSpecs {
		if v := node.attr(spec.attrName); v != "" {
			p, err := intent.NewPathPattern(spec.typ, v)
			if err != nil {
				return fmt.Errorf("<data>: %w", err)
			}
			f.AddDataPath(p)
		}
	}
	sspSpecs := []struct {
		attrName string
		typ      intent.PatternType
	}{
		{"ssp", intent.PatternLiteral},
		{"sspPrefix", intent.PatternPrefix},
		{"sspPattern", intent.PatternGlob},
	}
	for _, spec := range sspSpecs {
		if v := node.attr(spec.attrName); v != "" {
			p, err := intent.NewPathPattern(spec.typ, v)
			if err != nil {
				return fmt.Errorf("<data>: %w", err)
			}
			f.AddDataSchemeSpecificPart(p)
		}
	}
	if v := node.attr("mimeType"); v != "" {
		if err := f.AddDataType(v); err != nil {
			return fmt.Errorf("<data>: %w", err)
		}
	}
	return nil
}
