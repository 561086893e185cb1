package sheet

import "strings"

// BuiltinPrefix marks a heading as a built-in column rather than a user column.
const BuiltinPrefix = "$$"

// ComponentTypeValidation marks rows that describe a validation (check) component.
const ComponentTypeValidation = "validation"

// Built-in column names, as written to OSCAL property names.
const (
	ColComponentTitle             = "Component_Title"
	ColComponentDescription       = "Component_Description"
	ColComponentType              = "Component_Type"
	ColRuleID                     = "Rule_Id"
	ColRuleDescription            = "Rule_Description"
	ColProfileSource              = "Profile_Source"
	ColProfileDescription         = "Profile_Description"
	ColControlIDList              = "Control_Id_List"
	ColNamespace                  = "Namespace"
	ColParameterID                = "Parameter_Id"
	ColParameterDescription       = "Parameter_Description"
	ColParameterValueAlternatives = "Parameter_Value_Alternatives"
	ColParameterValueDefault      = "Parameter_Value_Default"
	ColCheckID                    = "Check_Id"
	ColCheckDescription           = "Check_Description"
	ColOriginalRiskRating         = "Original_Risk_Rating"
	ColAdjustedRiskRating         = "Adjusted_Risk_Rating"
	ColRiskAdjustment             = "Risk_Adjustment"
)

// RequiredColumns must be present as headings in every spreadsheet.
var RequiredColumns = []string{
	ColComponentTitle,
	ColComponentDescription,
	ColComponentType,
	ColRuleID,
	ColRuleDescription,
	ColProfileSource,
	ColProfileDescription,
	ColControlIDList,
	ColNamespace,
}

// OptionalColumns may be present as headings.
var OptionalColumns = []string{
	ColParameterID,
	ColParameterDescription,
	ColParameterValueAlternatives,
	ColParameterValueDefault,
	ColCheckID,
	ColCheckDescription,
	ColOriginalRiskRating,
	ColAdjustedRiskRating,
	ColRiskAdjustment,
}

// RulePropertyColumns lists, in precedence order, the built-in columns that become
// component properties for a rule. User columns follow in spreadsheet order.
var RulePropertyColumns = []string{
	ColRuleID,
	ColRuleDescription,
	ColParameterID,
	ColParameterDescription,
	ColParameterValueAlternatives,
	ColCheckID,
	ColCheckDescription,
	ColOriginalRiskRating,
	ColAdjustedRiskRating,
	ColRiskAdjustment,
}

// ValidationPropertyColumns lists the properties a validation row produces.
var ValidationPropertyColumns = []string{
	ColRuleID,
	ColCheckID,
	ColCheckDescription,
}

// ColumnDescriptions is written as the second heading row of a template.
var ColumnDescriptions = map[string]string{
	ColComponentTitle:             "A human readable name for the component.",
	ColComponentDescription:       "A description of the component including information about its function.",
	ColComponentType:              "A category describing the purpose of the component, e.g. service or validation.",
	ColRuleID:                     "A textual label that uniquely identifies the rule.",
	ColRuleDescription:            "A description of the rule.",
	ColProfileSource:              "A URL reference to the source catalog or profile.",
	ColProfileDescription:         "A description of the profile.",
	ColControlIDList:              "A list of controls or statements (space separated) implemented by the rule.",
	ColNamespace:                  "The namespace for the rule properties.",
	ColParameterID:                "A textual label that uniquely identifies the parameter associated with the rule.",
	ColParameterDescription:       "A description of the parameter.",
	ColParameterValueAlternatives: "The alternative values for the parameter.",
	ColParameterValueDefault:      "The default value(s) for the parameter, comma separated.",
	ColCheckID:                    "A textual label that uniquely identifies the check implementing the rule.",
	ColCheckDescription:           "A description of the check.",
	ColOriginalRiskRating:         "The risk rating before adjustment.",
	ColAdjustedRiskRating:         "The risk rating after adjustment.",
	ColRiskAdjustment:             "The reason for the risk adjustment.",
}

// IsBuiltin reports whether name is a known built-in column name (without prefix).
func IsBuiltin(name string) bool {
	return contains(RequiredColumns, name) || contains(OptionalColumns, name)
}

// Heading returns the spreadsheet heading for a built-in column.
func Heading(name string) string {
	return BuiltinPrefix + name
}

// TemplateHeadings returns the heading row for a spreadsheet carrying every built-in
// column followed by the given user columns.
func TemplateHeadings(userColumns []string) []string {
	headings := make([]string, 0, len(RequiredColumns)+len(OptionalColumns)+len(userColumns))
	for _, c := range RequiredColumns {
		headings = append(headings, Heading(c))
	}
	for _, c := range OptionalColumns {
		headings = append(headings, Heading(c))
	}
	return append(headings, userColumns...)
}

// DescriptionRow returns the description row matching headings.
func DescriptionRow(headings []string) []string {
	row := make([]string, len(headings))
	for i, h := range headings {
		row[i] = ColumnDescriptions[strings.TrimPrefix(h, BuiltinPrefix)]
	}
	return row
}

// ParseControlRef splits a Control_Id_List entry into its control id and, for
// sub-control statement references such as "ac-2_smt.a", the statement id.
func ParseControlRef(ref string) (controlID, statementID string) {
	if i := strings.Index(ref, "_smt"); i > 0 {
		return ref[:i], ref
	}
	return ref, ""
}

// PropertyName turns a user column heading into an OSCAL property name token.
func PropertyName(heading string) string {
	return strings.Join(strings.Fields(heading), "_")
}

func contains(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
