package logger_test

import (
	"context"

	"github.com/frahmantamala/clinic-management/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("request context", func() {
	It("falls back to the process logger", func() {
		ctx := context.Background()
		Expect(logger.From(ctx)).To(BeIdenticalTo(logger.L()))
		Expect(logger.TraceID(ctx)).To(BeEmpty())
	})

	It("keeps the trace id when fields are added", func() {
		ctx := logger.WithTraceID(context.Background(), "abc-123")
		tagged := logger.From(ctx)
		Expect(tagged).NotTo(BeIdenticalTo(logger.L()))

		ctx = logger.With(ctx, "user_id", 7)
		Expect(logger.TraceID(ctx)).To(Equal("abc-123"))
		Expect(logger.From(ctx)).NotTo(BeIdenticalTo(tagged))
	})
})
