// Package applicability вычисляет автоматическую применимость требования
// к организациям по FilterRules. Чистые функции, без доступа к БД.
package applicability

import "ib-compliance/internal/models"

// Matches — организация подходит, если выполнено каждое заданное условие.
// Внутри множества (категория КИИ, уровень ПДн) достаточно совпадения с любым элементом.
func Matches(rules models.FilterRules, org models.Organization) bool {
	if len(rules.KIICategory) > 0 && !inSet(org.KIICategory, rules.KIICategory) {
		return false
	}
	if len(rules.PDNLevel) > 0 && !inSet(org.PDNLevel, rules.PDNLevel) {
		return false
	}

	if required(rules.IsFinancial) && !org.IsFinancial {
		return false
	}
	if required(rules.IsHealthcare) && !org.IsHealthcare {
		return false
	}
	if required(rules.IsGovernment) && !org.IsGovernment {
		return false
	}
	if required(rules.HasForeignData) && !org.HasForeignData {
		return false
	}

	if rules.MinEmployeeCount != nil && org.EmployeeCount < *rules.MinEmployeeCount {
		return false
	}
	if rules.MaxEmployeeCount != nil && org.EmployeeCount > *rules.MaxEmployeeCount {
		return false
	}

	return true
}

// Resolve возвращает organizationID -> совпадение для всего каталога.
// Противоречивые границы (min > max) дают пустой результат, а не ошибку.
func Resolve(rules models.FilterRules, orgs []models.Organization) map[uint]bool {
	out := make(map[uint]bool, len(orgs))
	for _, org := range orgs {
		out[org.ID] = Matches(rules, org)
	}
	return out
}

// IsEmpty — правила без единого условия, подходят все организации.
func IsEmpty(rules models.FilterRules) bool {
	return len(rules.KIICategory) == 0 &&
		len(rules.PDNLevel) == 0 &&
		!required(rules.IsFinancial) &&
		!required(rules.IsHealthcare) &&
		!required(rules.IsGovernment) &&
		!required(rules.HasForeignData) &&
		rules.MinEmployeeCount == nil &&
		rules.MaxEmployeeCount == nil
}

// Validate проверяет значения множеств. Противоречивые границы численности допустимы.
func Validate(rules models.FilterRules) error {
	for _, c := range rules.KIICategory {
		if c < 1 || c > 3 {
			return &InvalidRuleError{Field: "kiiCategory", Value: c}
		}
	}
	for _, l := range rules.PDNLevel {
		if l < 1 || l > 4 {
			return &InvalidRuleError{Field: "pdnLevel", Value: l}
		}
	}
	if rules.MinEmployeeCount != nil && *rules.MinEmployeeCount < 0 {
		return &InvalidRuleError{Field: "minEmployeeCount", Value: *rules.MinEmployeeCount}
	}
	if rules.MaxEmployeeCount != nil && *rules.MaxEmployeeCount < 0 {
		return &InvalidRuleError{Field: "maxEmployeeCount", Value: *rules.MaxEmployeeCount}
	}
	return nil
}

type InvalidRuleError struct {
	Field string
	Value int
}

func (e *InvalidRuleError) Error() string {
	return "invalid value for " + e.Field
}

func required(flag *bool) bool {
	return flag != nil && *flag
}

func inSet(v *int, set []int) bool {
	if v == nil {
		return false
	}
	for _, s := range set {
		if s == *v {
			return true
		}
	}
	return false
}
