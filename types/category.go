package types

// Category 任务类别，每个类别对应一个专家
type Category string

const (
	CategoryPlanning      Category = "planning"
	CategoryDecomposition Category = "decomposition"
	CategoryCode          Category = "code"
	CategoryResearch      Category = "research"
	CategoryCommunication Category = "communication"
	CategoryMotivation    Category = "motivation"
)

// PriorityOrder 多类别时的固定执行与合并顺序
func PriorityOrder() []Category {
	return []Category{
		CategoryPlanning,
		CategoryDecomposition,
		CategoryCode,
		CategoryResearch,
		CategoryCommunication,
		CategoryMotivation,
	}
}

// Priority 返回类别在固定顺序中的位置，未知类别排在最后
func (c Category) Priority() int {
	for i, p := range PriorityOrder() {
		if p == c {
			return i
		}
	}
	return len(PriorityOrder())
}

// Valid 是否为已知类别
func (c Category) Valid() bool {
	return c.Priority() < len(PriorityOrder())
}
