package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

// 与 gin 保持一致，结构体统一使用 binding 标签
const tagName = "binding"

var (
	once     sync.Once
	validate *validator.Validate
	trans    ut.Translator
	language = "en"
)

func setup() {
	once.Do(func() {
		validate = validator.New()
		validate.SetTagName(tagName)
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		uni := ut.New(en.New(), en.New(), zh.New())
		var found bool
		trans, found = uni.GetTranslator(language)
		if !found {
			trans, _ = uni.GetTranslator("en")
		}
		switch language {
		case "zh":
			_ = zhTranslations.RegisterDefaultTranslations(validate, trans)
		default:
			_ = enTranslations.RegisterDefaultTranslations(validate, trans)
		}
	})
}

// LazyInitGinValidator 替换 gin 默认的校验器，错误信息按语言翻译
func LazyInitGinValidator(lang string) {
	if lang != "" {
		language = lang
	}
	setup()
	binding.Validator = &ginValidator{}
}

// Struct 校验结构体，返回翻译后的错误
func Struct(obj any) error {
	setup()
	if err := validate.Struct(obj); err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, e.Translate(trans))
	}
	return &ValidationError{Messages: msgs, cause: verrs}
}

// ValidationError 翻译后的校验错误
type ValidationError struct {
	Messages []string
	cause    error
}

func (e *ValidationError) Error() string { return strings.Join(e.Messages, "; ") }

func (e *ValidationError) Unwrap() error { return e.cause }

type ginValidator struct{}

func (v *ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	val := reflect.ValueOf(obj)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil
	}
	return Struct(obj)
}

func (v *ginValidator) Engine() any {
	setup()
	return validate
}
