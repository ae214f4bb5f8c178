// Package docs registers the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "parameters": {
        "gender": {
            "name": "gender",
            "in": "query",
            "type": "array",
            "items": {"type": "string"},
            "collectionFormat": "multi",
            "description": "Allowed genders. Absent selects every value; present but empty selects none."
        },
        "os": {
            "name": "os",
            "in": "query",
            "type": "array",
            "items": {"type": "string"},
            "collectionFormat": "multi",
            "description": "Allowed operating systems. Absent selects every value; present but empty selects none."
        }
    },
    "paths": {
        "/health": {
            "get": {"summary": "Service health, dataset row count and cache stats", "responses": {"200": {"description": "OK"}, "503": {"description": "Dataset unavailable"}}}
        },
        "/api/filters": {
            "get": {"summary": "Distinct gender and operating system values", "responses": {"200": {"description": "OK"}}}
        },
        "/api/dashboard": {
            "get": {
                "summary": "KPIs and every dashboard tab for the selection",
                "parameters": [{"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid filter"}}
            }
        },
        "/api/kpis": {
            "get": {
                "summary": "KPI cards for the selection",
                "parameters": [{"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/mean": {
            "get": {
                "summary": "Mean of a numeric column",
                "parameters": [{"name": "column", "in": "query", "type": "string", "required": true}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown or non-numeric column"}}
            }
        },
        "/api/aggregate/histogram": {
            "get": {
                "summary": "Equal-width histogram of a numeric column",
                "parameters": [{"name": "column", "in": "query", "type": "string", "required": true}, {"name": "buckets", "in": "query", "type": "integer", "minimum": 1, "maximum": 1000, "default": 30}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid parameters"}}
            }
        },
        "/api/aggregate/group-mean": {
            "get": {
                "summary": "Mean of value per group",
                "parameters": [{"name": "group", "in": "query", "type": "string", "required": true}, {"name": "value", "in": "query", "type": "string", "required": true}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/top": {
            "get": {
                "summary": "Groups ranked by mean value",
                "parameters": [{"name": "group", "in": "query", "type": "string", "required": true}, {"name": "value", "in": "query", "type": "string", "required": true}, {"name": "n", "in": "query", "type": "integer"}, {"name": "order", "in": "query", "type": "string", "enum": ["desc", "asc"]}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/correlation": {
            "get": {
                "summary": "Pearson correlation matrix",
                "parameters": [{"name": "column", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "multi"}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/distribution": {
            "get": {
                "summary": "Row counts per category",
                "parameters": [{"name": "column", "in": "query", "type": "string", "required": true}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/box": {
            "get": {
                "summary": "Five-number summary of value per group",
                "parameters": [{"name": "group", "in": "query", "type": "string", "required": true}, {"name": "value", "in": "query", "type": "string", "required": true}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/aggregate/scatter": {
            "get": {
                "summary": "Paired values with a least-squares trendline",
                "parameters": [{"name": "x", "in": "query", "type": "string", "required": true}, {"name": "y", "in": "query", "type": "string", "required": true}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/records": {
            "get": {
                "summary": "Filtered rows, paged",
                "parameters": [{"name": "limit", "in": "query", "type": "integer"}, {"name": "offset", "in": "query", "type": "integer"}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/charts/{name}": {
            "get": {
                "summary": "Dashboard chart as PNG",
                "produces": ["image/png"],
                "parameters": [{"name": "name", "in": "path", "type": "string", "required": true, "description": "usage-histogram.png, usage-vs-battery.png, top-devices.png, usage-by-gender.png, usage-by-age.png or behavior-classes.png"}, {"$ref": "#/parameters/gender"}, {"$ref": "#/parameters/os"}],
                "responses": {"200": {"description": "PNG image"}, "400": {"description": "Unknown chart"}}
            }
        },
        "/api/reload": {
            "post": {"summary": "Drop caches and reload the dataset source", "responses": {"200": {"description": "OK"}, "503": {"description": "Dataset unavailable"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "usagepulse API",
	Description:      "Mobile device usage dashboard: filtered KPIs, aggregates and charts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
