package expression

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/l7mp/hybridagg/pkg/document"
)

var _ = Describe("Registry", func() {
	var reg *Registry

	constant := func(v any) OperatorFunc {
		return func(context.Context, document.Document, any) (any, error) { return v, nil }
	}

	BeforeEach(func() {
		reg = NewRegistry()
	})

	It("should register and look up an operator", func() {
		Expect(reg.Register("$one", constant(1))).To(Succeed())
		op, ok := reg.Lookup("$one")
		Expect(ok).To(BeTrue())
		v, err := op.Evaluate(context.Background(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(1))
		Expect(reg.Len()).To(Equal(1))
	})

	It("should reject a name without the operator prefix", func() {
		err := reg.Register("one", constant(1))
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrInvalidOperatorName)).To(BeTrue())
		Expect(reg.Len()).To(Equal(0))

		err = reg.Register("", constant(1))
		Expect(errors.Is(err, ErrInvalidOperatorName)).To(BeTrue())
	})

	It("should let the last registration win", func() {
		Expect(reg.Register("$op", constant("first"))).To(Succeed())
		Expect(reg.Register("$op", constant("second"))).To(Succeed())
		op, ok := reg.Lookup("$op")
		Expect(ok).To(BeTrue())
		v, _ := op.Evaluate(context.Background(), nil, nil)
		Expect(v).To(Equal("second"))
		Expect(reg.Len()).To(Equal(1))
	})

	It("should unregister idempotently", func() {
		Expect(reg.Register("$op", constant(1))).To(Succeed())
		reg.Unregister("$op")
		_, ok := reg.Lookup("$op")
		Expect(ok).To(BeFalse())
		reg.Unregister("$op")
		reg.Unregister("$never")
		Expect(reg.Len()).To(Equal(0))
	})

	It("should list names in order", func() {
		Expect(reg.Register("$b", constant(1))).To(Succeed())
		Expect(reg.Register("$a", constant(1))).To(Succeed())
		Expect(reg.Register("$c", constant(1))).To(Succeed())
		Expect(reg.Names()).To(Equal([]string{"$a", "$b", "$c"}))
	})
})

var _ = Describe("Custom operator detection", func() {
	var reg *Registry

	BeforeEach(func() {
		reg = NewRegistry()
		Expect(reg.RegisterFunc("$prompt", func(context.Context, document.Document, any) (any, error) {
			return nil, nil
		})).To(Succeed())
	})

	It("should not detect anything with an empty or nil registry", func() {
		stage := document.Document{"$project": document.Document{"x": document.Document{"$prompt": 1}}}
		Expect(ContainsCustomOperator(stage, nil)).To(BeFalse())
		Expect(ContainsCustomOperator(stage, NewRegistry())).To(BeFalse())
	})

	It("should detect an operator in a field value", func() {
		stage := document.Document{"$project": document.Document{
			"x": document.Document{"$prompt": []any{"comment", "Summarize"}},
		}}
		Expect(ContainsCustomOperator(stage, reg)).To(BeTrue())
	})

	It("should detect an operator as the stage key", func() {
		Expect(ContainsCustomOperator(document.Document{"$prompt": 1}, reg)).To(BeTrue())
	})

	It("should detect an operator nested in a list inside a built-in argument", func() {
		stage := bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "x", Value: bson.M{"$concat": bson.A{"a", bson.M{"$prompt": bson.A{"b", "c"}}}}},
		}}}
		Expect(ContainsCustomOperator(stage, reg)).To(BeTrue())
	})

	It("should not detect built-ins or plain keys", func() {
		stage := document.Document{
			"$match": document.Document{"prompt": "$prompt"},
			"$project": document.Document{
				"x": document.Document{"$toUpper": "$prompt"},
			},
		}
		Expect(ContainsCustomOperator(stage, reg)).To(BeFalse())
	})

	It("should follow registry changes", func() {
		stage := document.Document{"$match": document.Document{"$prompt": 1}}
		Expect(ContainsCustomOperator(stage, reg)).To(BeTrue())
		reg.Unregister("$prompt")
		Expect(ContainsCustomOperator(stage, reg)).To(BeFalse())
	})
	It("should list the custom operators in use", func() {
		Expect(reg.RegisterFunc("$double", func(context.Context, document.Document, any) (any, error) {
			return nil, nil
		})).To(Succeed())
		stage := document.Document{"$project": document.Document{
			"x": document.Document{"$prompt": []any{"a", "b"}},
			"y": document.Document{"$concat": []any{document.Document{"$double": 1}, document.Document{"$prompt": 1}}},
			"z": document.Document{"$toUpper": "$x"},
		}}
		Expect(CustomOperatorsIn(stage, reg)).To(Equal([]string{"$double", "$prompt"}))
		Expect(CustomOperatorsIn(stage, nil)).To(BeEmpty())
	})
})
