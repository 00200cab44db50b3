package di_test

import (
	"errors"
	"testing"

	"github.com/gocrud/ioc/di"
)

// 开放泛型测试族
type Repo[T any] interface {
	Kind() string
}

type MemRepo[T any] struct {
	created int
}

func (r *MemRepo[T]) Kind() string { return di.TypeOf[T]().String() }

func NewIntRepo() Repo[int]       { return &MemRepo[int]{} }
func NewStringRepo() Repo[string] { return &MemRepo[string]{} }

func registerRepoFamily(c *di.Container) {
	family := di.GenericFamilyOf(di.TypeOf[Repo[int]]())
	_, err := c.RegisterGeneric(family, func(req *di.Request, _ *di.Container) (*di.Factory, error) {
		switch req.ServiceType {
		case di.TypeOf[Repo[int]]():
			return di.NewReflectionFactoryCtor(NewIntRepo, di.Singleton, nil)
		case di.TypeOf[Repo[string]]():
			return di.NewReflectionFactoryCtor(NewStringRepo, di.Singleton, nil)
		default:
			return nil, &di.ContainerError{
				Kind:    di.ErrUnableToFindOpenGenericImplTypeArg,
				Message: di.ErrUnableToFindOpenGenericImplTypeArg.Error() + ": " + req.ServiceType.String(),
			}
		}
	}, nil)
	if err != nil {
		panic(err)
	}
}

// Test 开放泛型：不同封闭类型各自的单例，封闭工厂记忆化
func TestOpenGenericResolution(t *testing.T) {
	c := di.NewContainer()
	registerRepoFamily(c)

	intRepo, err := di.Resolve[Repo[int]](c)
	if err != nil {
		t.Fatalf("Failed to resolve Repo[int]: %v", err)
	}
	strRepo, err := di.Resolve[Repo[string]](c)
	if err != nil {
		t.Fatalf("Failed to resolve Repo[string]: %v", err)
	}

	if intRepo.Kind() != "int" {
		t.Errorf("Expected closed type int, got %s", intRepo.Kind())
	}
	if strRepo.Kind() != "string" {
		t.Errorf("Expected closed type string, got %s", strRepo.Kind())
	}

	// 同一封闭类型重复解析返回同一单例
	intRepo2, _ := di.Resolve[Repo[int]](c)
	if intRepo != intRepo2 {
		t.Error("Closed-form factory must be memoized (same singleton)")
	}

	// 封闭工厂已注册在封闭类型下
	if !c.IsRegistered(di.TypeOf[Repo[int]]()) {
		t.Error("Closed form must be registered after specialization")
	}
}

// Test 开放泛型封闭失败
func TestOpenGenericBinderMiss(t *testing.T) {
	c := di.NewContainer()
	registerRepoFamily(c)

	_, err := di.Resolve[Repo[float64]](c)
	if !errors.Is(err, di.ErrUnableToFindOpenGenericImplTypeArg) {
		t.Errorf("Expected ErrUnableToFindOpenGenericImplTypeArg, got: %v", err)
	}
}

// Test 族名注册校验
func TestRegisterGenericValidation(t *testing.T) {
	c := di.NewContainer()

	_, err := c.RegisterGeneric("", nil, nil)
	if !errors.Is(err, di.ErrOpenGenericMissingTypeArgs) {
		t.Errorf("Expected ErrOpenGenericMissingTypeArgs, got: %v", err)
	}

	_, err = c.RegisterGeneric("pkg.Repo[int]", nil, nil)
	if !errors.Is(err, di.ErrOpenGenericImplWithNonGenericService) {
		t.Errorf("Expected ErrOpenGenericImplWithNonGenericService, got: %v", err)
	}
}

// Test GenericFamilyOf
func TestGenericFamilyOf(t *testing.T) {
	if fam := di.GenericFamilyOf(di.TypeOf[Repo[int]]()); fam == "" {
		t.Error("Expected a family name for a generic instantiation")
	}
	if di.GenericFamilyOf(di.TypeOf[Repo[int]]()) != di.GenericFamilyOf(di.TypeOf[Repo[string]]()) {
		t.Error("Instantiations of one family must share the family name")
	}
	if fam := di.GenericFamilyOf(di.TypeOf[*Counter]()); fam != "" {
		t.Errorf("Non-generic type must have no family, got %q", fam)
	}
	if fam := di.GenericFamilyOf(di.TypeOf[[]int]()); fam != "" {
		t.Errorf("Unnamed composite must have no family, got %q", fam)
	}
}

// GenericAudit 开放泛型装饰器的测试替身
type AuditRepo struct {
	Inner Repo[int]
}

func (a *AuditRepo) Kind() string { return "audit(" + a.Inner.Kind() + ")" }

// Test 开放泛型装饰器：按封闭类型特化
func TestOpenGenericDecorator(t *testing.T) {
	c := di.NewContainer()
	registerRepoFamily(c)

	family := di.GenericFamilyOf(di.TypeOf[Repo[int]]())
	_, err := c.RegisterGeneric(family, func(req *di.Request, _ *di.Container) (*di.Factory, error) {
		if req.ServiceType != di.TypeOf[Repo[int]]() {
			return nil, nil // 只装饰 Repo[int]
		}
		return di.NewReflectionFactoryCtor(func(inner Repo[int]) Repo[int] {
			return &AuditRepo{Inner: inner}
		}, di.Transient, di.SetupDecorator(nil))
	}, di.SetupDecorator(nil))
	if err != nil {
		t.Fatalf("Failed to register generic decorator: %v", err)
	}

	intRepo, err := di.Resolve[Repo[int]](c)
	if err != nil {
		t.Fatalf("Failed to resolve decorated Repo[int]: %v", err)
	}
	if intRepo.Kind() != "audit(int)" {
		t.Errorf("Expected audit(int), got %s", intRepo.Kind())
	}

	strRepo, err := di.Resolve[Repo[string]](c)
	if err != nil {
		t.Fatalf("Failed to resolve Repo[string]: %v", err)
	}
	if strRepo.Kind() != "string" {
		t.Errorf("Repo[string] must stay undecorated, got %s", strRepo.Kind())
	}
}
