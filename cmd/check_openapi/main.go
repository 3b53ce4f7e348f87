package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Format     string            `yaml:"format"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]propertyShape
}

type propertyShape struct {
	Type     string
	ItemsRef string
}

// requiredOperations lists every route the letters service serves.
var requiredOperations = map[string][]string{
	"/healthz":                 {"get"},
	"/letters":                 {"get", "post"},
	"/letters/{id}":            {"get"},
	"/letters/{id}/deliver":    {"post", "put"},
	"/letters/{id}/overlay":    {"get"},
	"/users":                   {"get", "post"},
	"/users/{pincode}/postbox": {"get", "put"},
	"/mailbox":                 {"get"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	if err := validatePaths(doc); err != nil {
		return err
	}
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	notReady, err := getSchema(doc, "NotReadyResponse")
	if err != nil {
		return err
	}
	if err := validateNotReady(notReady, errResp); err != nil {
		return err
	}
	stroke, err := getSchema(doc, "Stroke")
	if err != nil {
		return err
	}
	letter, err := getSchema(doc, "Letter")
	if err != nil {
		return err
	}
	return validateLetter(letter, stroke)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validatePaths(doc openAPIDoc) error {
	if doc.Paths == nil {
		return errors.New("paths missing")
	}
	routes := make([]string, 0, len(requiredOperations))
	for route := range requiredOperations {
		routes = append(routes, route)
	}
	sort.Strings(routes)
	for _, route := range routes {
		ops, ok := doc.Paths[route]
		if !ok {
			return fmt.Errorf("path %q missing", route)
		}
		for _, method := range requiredOperations[route] {
			if _, ok := ops[method]; !ok {
				return fmt.Errorf("path %q missing %s operation", route, strings.ToUpper(method))
			}
		}
	}
	return nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	return nil
}

// validateNotReady checks that the not-ready body is an error body plus the
// two timestamps a client needs to show a countdown.
func validateNotReady(s, errResp schema) error {
	if s.Type != "object" {
		return errors.New("NotReadyResponse must be object")
	}
	base := shapeFromSchema(errResp)
	shape := shapeFromSchema(s)
	for name, prop := range base.Properties {
		got, ok := shape.Properties[name]
		if !ok {
			return fmt.Errorf("NotReadyResponse missing ErrorResponse property %q", name)
		}
		if got != prop {
			return fmt.Errorf("NotReadyResponse property %q mismatch: %+v vs %+v", name, got, prop)
		}
	}
	required := makeSet(s.Required)
	for _, field := range []string{"deliveryTime", "currentTime"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" || prop.Format != "date-time" {
			return fmt.Errorf("NotReadyResponse.%s must be a date-time string", field)
		}
		if !required[field] {
			return fmt.Errorf("NotReadyResponse.required must include %q", field)
		}
	}
	return nil
}

func validateLetter(letter, stroke schema) error {
	if letter.Type != "object" {
		return errors.New("Letter must be object")
	}
	strokes, ok := letter.Properties["brushStrokes"]
	if !ok || strokes.Type != "array" {
		return errors.New("Letter.brushStrokes must be array")
	}
	if strokes.Items == nil || strings.TrimSpace(strokes.Items.Ref) != "#/components/schemas/Stroke" {
		return errors.New("Letter.brushStrokes.items must reference Stroke")
	}
	required := makeSet(stroke.Required)
	for _, field := range []string{"x", "y", "type"} {
		if !required[field] {
			return fmt.Errorf("Stroke.required must include %q", field)
		}
	}
	return nil
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]propertyShape, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		shape := propertyShape{Type: prop.Type}
		if prop.Items != nil {
			shape.ItemsRef = strings.TrimSpace(prop.Items.Ref)
		}
		out.Properties[name] = shape
	}
	return out
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
