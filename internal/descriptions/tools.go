package descriptions

import "sort"

// Tool descriptions with practical examples, shown to MCP clients

const (
	TaxformFillDescription = `Fill an IRS fillable form template from a tax return payload and save the filled PDF.

**When to use:** You have the taxpayer details and line-item values of a return and need the official form filled in.

**Payload shape:**
{"taxpayer": {"first_name": "John", "last_name": "Doe", "ssn": "123-45-6789", "status_display": "Single"},
 "fields": {"1a": {"value": "75000", "can_be_modified": false}, "11": {"value": "68000"}}}

**Behaviour:**
• Only keys present in the payload are written; everything else keeps the template's defaults
• Line items with "can_be_modified": false are locked and shaded grey (disable with grey_out=false)
• Derived taxpayer values such as the full name are built from first and last name
• Filing status and other multi-way checkboxes switch on exactly one option

**Examples:**
• "Fill form_1040 for John Doe with wages of 75000"
• "Fill schedule_c for the consulting business and save it as consulting.pdf"

**Best practices:** Run taxform_list first to see which forms have templates; check the unresolved keys in the result.`

	TaxformListDescription = `List the tax forms this server can fill.

**When to use:** Before filling, to find the form name to pass to taxform_fill and whether its template is installed.

**Returns:** Form name, title, template file, routed form-record ids, and whether a field mapping and template exist.`

	TaxformFieldsDescription = `List the raw fields of a form's template.

**When to use:** Inspecting a template, debugging why a value did not land, or writing a new mapping table.

**Returns:** Every field with its full name, short name, kind (text, checkbox, radio, choice), page, and on-states for checkboxes.

**Examples:**
• "Show the fields of schedule_b"
• "Which checkbox states does form_1040 use for filing status?"`

	TaxformCoverageDescription = `Check how well a form's mapping tables fit its installed template.

**When to use:** After installing a new template revision, to find mapping targets that no longer resolve.

**Returns:** One line per mapping target with the match tier (exact, suffix, substring, none), the resolved field, a coverage percentage, and the template fields nothing maps to.`

	TaxformServerInfoDescription = `Get server status, template health and the available tools.

**When to use:** First contact with the server, or to diagnose missing or damaged templates.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"taxform_fill":        TaxformFillDescription,
	"taxform_list":        TaxformListDescription,
	"taxform_fields":      TaxformFieldsDescription,
	"taxform_coverage":    TaxformCoverageDescription,
	"taxform_server_info": TaxformServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns every described tool name, sorted
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
