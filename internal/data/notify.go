package data

import (
	"context"
	"fmt"
	"strings"

	"referralhub/internal/biz"
	"referralhub/internal/conf"
	"referralhub/pkg/telegram"
	"referralhub/pkg/threading"

	"github.com/go-kratos/kratos/v2/log"
)

// 摘要里最多列出的 id 数
const notifyMaxIDs = 10

type textSender interface {
	SendText(ctx context.Context, text string) error
}

// goFunc 与 threading.Go 签名一致
type goFunc func(ctx context.Context, run func(ctx context.Context), panicFunc ...func(ctx context.Context, err any)) error

// batchNotifier 把批量修改的摘要异步发到 telegram，未配置时什么都不做
type batchNotifier struct {
	sender textSender
	goFn   goFunc
	log    *log.Helper
}

func NewBatchNotifier(c *conf.Data, logger log.Logger) *batchNotifier {
	n := &batchNotifier{
		goFn: threading.Go,
		log:  log.NewHelper(log.With(logger, "module", "data.notify")),
	}
	if c != nil && c.Telegram != nil {
		tg := telegram.New(c.Telegram.Token, c.Telegram.ChatId)
		if tg.Enabled() {
			n.sender = tg
		}
	}
	return n
}

func (n *batchNotifier) NotifyBatch(ctx context.Context, ids []string, m biz.Mutation, res *biz.BatchResult) {
	if n == nil || n.sender == nil || res == nil {
		return
	}
	text := batchSummary(ids, m, res)
	err := n.goFn(ctx, func(ctx context.Context) {
		if err := n.sender.SendText(ctx, text); err != nil {
			n.log.WithContext(ctx).Warnf("NotifyBatch send failed err=%v", err)
		}
	})
	if err != nil {
		n.log.WithContext(ctx).Warnf("NotifyBatch not scheduled err=%v", err)
	}
}

func batchSummary(ids []string, m biz.Mutation, res *biz.BatchResult) string {
	var target string
	switch {
	case m.Status != nil:
		target = "status -> " + string(*m.Status)
	case m.Selected != nil:
		target = fmt.Sprintf("selected -> %t", *m.Selected)
	}

	shown := make([]string, 0, notifyMaxIDs)
	for _, row := range res.Rows {
		if len(shown) == notifyMaxIDs {
			break
		}
		shown = append(shown, row.ID)
	}
	more := ""
	if res.UpdatedCount > len(shown) {
		more = fmt.Sprintf(" (+%d more)", res.UpdatedCount-len(shown))
	}
	return fmt.Sprintf("[referralhub] batch %s: %d/%d updated\n%s%s",
		target, res.UpdatedCount, len(ids), strings.Join(shown, ", "), more)
}
