package specialist

import "go.uber.org/zap"

// Sources 内置专家使用的集成客户端，任意字段可以为空
type Sources struct {
	Calendar CalendarReader
	Mail     Mailbox
	Code     CodeHost
	Issues   IssueTracker
}

// Builtins 返回六个内置专家，按优先级排序
func Builtins(src Sources, logger *zap.Logger) []Specialist {
	return []Specialist{
		NewPlanner(src.Calendar, logger),
		NewAnalyst(src.Issues, logger),
		NewDeveloper(src.Code, logger),
		NewResearcher(),
		NewCommunicator(src.Mail, src.Calendar, logger),
		NewMotivator(),
	}
}

// NewDefaultRegistry 创建已注册全部内置专家的注册表
func NewDefaultRegistry(src Sources, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for _, s := range Builtins(src, logger) {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}
