package auth

import "context"

type ctxKey string

const (
	ctxKeySub   ctxKey = "sub"
	ctxKeyJudge ctxKey = "judge_id"
)

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeySub); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithJudgeID records the judge the caller acts as. Admin tokens usually carry none.
func WithJudgeID(ctx context.Context, judgeID string) context.Context {
	return context.WithValue(ctx, ctxKeyJudge, judgeID)
}

func JudgeIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxKeyJudge); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
