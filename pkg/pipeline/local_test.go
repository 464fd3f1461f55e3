package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/hybridagg/pkg/document"
	"github.com/l7mp/hybridagg/pkg/expression"
)

var _ = Describe("Local executor", func() {
	var reg *expression.Registry
	var docs []document.Document
	var ctx context.Context

	stage := func(data string) Stage {
		p, err := Parse([]byte(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Stages).To(HaveLen(1))
		return p.Stages[0]
	}

	BeforeEach(func() {
		ctx = context.Background()
		reg = expression.NewRegistry()
		Expect(reg.RegisterFunc("$double", func(_ context.Context, doc document.Document, arg any) (any, error) {
			path, err := expression.AsString(arg)
			if err != nil {
				return nil, err
			}
			v, err := expression.AsInt(document.Resolve(doc, path[1:]))
			if err != nil {
				return nil, nil
			}
			return 2 * v, nil
		})).To(Succeed())

		docs = []document.Document{
			{"_id": int64(1), "val": int64(5), "s": "abc", "nested": document.Document{"x": int64(1)}},
			{"_id": int64(2), "val": int64(7), "s": "def"},
		}
	})

	Describe("$project", func() {
		It("should evaluate a custom operator and keep the identity field", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"val": 1, "doubled": {"$double": "$val"}}}`), docs[:1])
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{
				{"_id": int64(1), "val": int64(5), "doubled": int64(10)},
			}))
		})

		It("should drop the identity field when excluded", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"_id": 0, "s": true}}`), docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{{"s": "abc"}, {"s": "def"}}))
		})

		It("should omit included fields that are absent", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"nested": 1}}`), docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{
				{"_id": int64(1), "nested": document.Document{"x": int64(1)}},
				{"_id": int64(2)},
			}))
		})

		It("should assign nil results", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"m": "$missing", "d": {"$double": "$s"}}}`), docs[:1])
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{{"_id": int64(1), "m": nil, "d": nil}}))
		})

		It("should accept float and bool markers", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"val": 1.0, "s": false, "_id": false}}`), docs[:1])
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{{"val": int64(5)}}))
		})

		It("should treat other literals as values", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"two": 2, "str": "lit", "obj": {"a": "$s", "b": 1}}}`), docs[:1])
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{{
				"_id": int64(1),
				"two": int64(2),
				"str": "lit",
				"obj": document.Document{"a": "abc", "b": int64(1)},
			}}))
		})

		It("should fail on a built-in arity error", func() {
			x := NewLocalExecutor(reg, 1, logger)
			_, err := x.Execute(ctx, stage(`{"$project": {"x": {"$substr": ["$s", 0]}}}`), docs)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, expression.ErrOperatorArgument)).To(BeTrue())
		})

		It("should reject a non-document argument", func() {
			x := NewLocalExecutor(reg, 1, logger)
			_, err := x.Execute(ctx, stage(`{"$project": "val"}`), docs)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, ErrInvalidStage)).To(BeTrue())
		})
	})

	Describe("$addFields", func() {
		It("should keep the input document and add fields", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$addFields": {"doubled": {"$double": "$val"}, "s": {"$toUpper": "$s"}}}`), docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{
				{"_id": int64(1), "val": int64(5), "s": "ABC", "doubled": int64(10), "nested": document.Document{"x": int64(1)}},
				{"_id": int64(2), "val": int64(7), "s": "DEF", "doubled": int64(14)},
			}))
		})

		It("should handle markers", func() {
			x := NewLocalExecutor(reg, 1, logger)
			res, err := x.Execute(ctx, stage(`{"$addFields": {"val": 1, "s": 0}}`), docs[1:])
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal([]document.Document{{"_id": int64(2), "val": int64(7)}}))
		})

		It("should not modify the input documents", func() {
			x := NewLocalExecutor(reg, 1, logger)
			_, err := x.Execute(ctx, stage(`{"$addFields": {"nested": {"y": 2}, "s": 0}}`), docs)
			Expect(err).NotTo(HaveOccurred())
			Expect(docs[0]).To(Equal(document.Document{
				"_id": int64(1), "val": int64(5), "s": "abc", "nested": document.Document{"x": int64(1)},
			}))
		})
	})

	It("should reject other stages", func() {
		x := NewLocalExecutor(reg, 1, logger)
		_, err := x.Execute(ctx, stage(`{"$match": {"a": {"$double": 1}}}`), docs)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrUnsupportedCustomStage)).To(BeTrue())
	})

	It("should return an empty result on empty input", func() {
		x := NewLocalExecutor(reg, 4, logger)
		res, err := x.Execute(ctx, stage(`{"$project": {"a": 1}}`), []document.Document{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(BeEmpty())
	})

	It("should propagate handler errors unchanged", func() {
		errBoom := errors.New("boom")
		Expect(reg.RegisterFunc("$boom", func(context.Context, document.Document, any) (any, error) {
			return nil, errBoom
		})).To(Succeed())
		x := NewLocalExecutor(reg, 1, logger)
		_, err := x.Execute(ctx, stage(`{"$project": {"a": {"$boom": 1}}}`), docs)
		Expect(err).To(BeIdenticalTo(errBoom))
	})

	Describe("concurrent evaluation", func() {
		var many []document.Document

		BeforeEach(func() {
			many = make([]document.Document, 100)
			for i := range many {
				many[i] = document.Document{"_id": int64(i), "val": int64(i)}
			}
		})

		It("should preserve input order", func() {
			x := NewLocalExecutor(reg, 8, logger)
			res, err := x.Execute(ctx, stage(`{"$project": {"doubled": {"$double": "$val"}}}`), many)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(HaveLen(len(many)))
			for i := range res {
				Expect(res[i]).To(Equal(document.Document{"_id": int64(i), "doubled": int64(2 * i)}))
			}
		})

		It("should equal sequential evaluation", func() {
			s := stage(`{"$addFields": {"d": {"$double": "$val"}, "c": {"$concat": ["id-", "$_id"]}}}`)
			seq, err := NewLocalExecutor(reg, 1, logger).Execute(ctx, s, many)
			Expect(err).NotTo(HaveOccurred())
			par, err := NewLocalExecutor(reg, 16, logger).Execute(ctx, s, many)
			Expect(err).NotTo(HaveOccurred())
			Expect(par).To(Equal(seq))
			Expect(par[42]["c"]).To(Equal("id-42"))
		})

		It("should bound the number of concurrent evaluations", func() {
			var inflight, peak atomic.Int64
			Expect(reg.RegisterFunc("$track", func(context.Context, document.Document, any) (any, error) {
				n := inflight.Add(1)
				defer inflight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				return n, nil
			})).To(Succeed())

			_, err := NewLocalExecutor(reg, 3, logger).Execute(ctx, stage(`{"$project": {"t": {"$track": 1}}}`), many)
			Expect(err).NotTo(HaveOccurred())
			Expect(peak.Load()).To(BeNumerically("<=", 3))
		})

		It("should fail if any document fails", func() {
			Expect(reg.RegisterFunc("$failOn42", func(_ context.Context, doc document.Document, _ any) (any, error) {
				if doc["_id"] == int64(42) {
					return nil, fmt.Errorf("failed on %v", doc["_id"])
				}
				return doc["_id"], nil
			})).To(Succeed())

			_, err := NewLocalExecutor(reg, 4, logger).Execute(ctx, stage(`{"$project": {"x": {"$failOn42": 1}}}`), many)
			Expect(err).To(MatchError("failed on 42"))
		})
	})
})
