package specialist

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/dailycrew/agent/credential"
	"github.com/BaSui01/dailycrew/types"
)

// Status 专家执行结果类型
type Status string

const (
	StatusOutcome   Status = "outcome"
	StatusNeedsInfo Status = "needs_info"
	StatusFailed    Status = "failed"
)

// Stage 执行阶段，同一阶段内的专家互不依赖，可以并发执行
type Stage int

const (
	StagePlanning   Stage = 1
	StageAnalysis   Stage = 2
	StageExecution  Stage = 3
	StageReflection Stage = 4
)

// Descriptor 描述一个专家
type Descriptor struct {
	Name     string                  `json:"name"`
	Category types.Category          `json:"category"`
	Stage    Stage                   `json:"stage"`
	Requires []types.IntegrationKind `json:"requires,omitempty"`
	Optional []types.IntegrationKind `json:"optional,omitempty"`
}

// Integrations returns required and optional kinds, required first.
func (d Descriptor) Integrations() []types.IntegrationKind {
	out := make([]types.IntegrationKind, 0, len(d.Requires)+len(d.Optional))
	out = append(out, d.Requires...)
	return append(out, d.Optional...)
}

// Task 专家输入
type Task struct {
	UserID string
	// Intent 用户原始文本
	Intent string
	// Upstream 前序专家输出的压缩上下文
	Upstream string
	// Credentials 已通过能力检查的集成句柄
	Credentials []credential.Handle
	// Answer 用户对上一轮 NeedsInfo 追问的回答
	Answer   string
	Now      time.Time
	Timezone string
}

// Location 解析任务时区，无效时回退到 UTC
func (t Task) Location() *time.Location {
	if t.Timezone != "" {
		if loc, err := time.LoadLocation(t.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Handle 返回指定集成的句柄
func (t Task) Handle(kind types.IntegrationKind) (credential.Handle, bool) {
	return credential.Find(t.Credentials, kind)
}

// Result 专家输出
type Result struct {
	Status      Status            `json:"status"`
	Text        string            `json:"text,omitempty"`
	Attachments map[string]string `json:"attachments,omitempty"`
	// SubTasks 专家拆解出的子任务标题
	SubTasks []string `json:"sub_tasks,omitempty"`
	// Question NeedsInfo 时向用户追问的问题
	Question string          `json:"question,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Code     types.ErrorCode `json:"code,omitempty"`
}

// Outcome 构造成功结果
func Outcome(text string) Result {
	return Result{Status: StatusOutcome, Text: text}
}

// NeedsInfo 构造追问结果
func NeedsInfo(question string) Result {
	return Result{Status: StatusNeedsInfo, Question: question}
}

// Failed 构造失败结果
func Failed(code types.ErrorCode, reason string) Result {
	if code == "" {
		code = types.ErrSpecialistFailed
	}
	return Result{Status: StatusFailed, Code: code, Reason: reason}
}

// FromError 将集成错误转换为失败结果
func FromError(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed(types.ErrSpecialistTimeout, "timeout")
	}
	if errors.Is(err, credential.ErrNotFound) {
		return Failed(types.ErrCredentialMissing, err.Error())
	}
	return Failed(types.GetErrorCode(err), err.Error())
}

// WithAttachment 附加结构化数据
func (r Result) WithAttachment(key, value string) Result {
	if r.Attachments == nil {
		r.Attachments = make(map[string]string)
	}
	r.Attachments[key] = value
	return r
}

// WithSubTasks 附加子任务
func (r Result) WithSubTasks(titles ...string) Result {
	r.SubTasks = append(r.SubTasks, titles...)
	return r
}

// OK 是否为成功结果
func (r Result) OK() bool { return r.Status == StatusOutcome }

// Specialist 专家契约
type Specialist interface {
	Descriptor() Descriptor
	Run(ctx context.Context, task Task) Result
}
