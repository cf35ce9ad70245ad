package dashboard

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/normalize"
)

const harvestDateLayout = "2006-01-02"

// RegistrationForm is submitted once by a producer the ledger does not know yet.
type RegistrationForm struct {
	Name        string `json:"name" validate:"required,notblank,max=128"`
	ContactInfo string `json:"contactInfo" validate:"required,phone"`
	Location    string `json:"location" validate:"required,notblank,max=128"`
}

// ProfileForm edits the display fields of a registered producer.
type ProfileForm struct {
	FarmName    string `json:"farmName" validate:"required,notblank,max=128"`
	Location    string `json:"location" validate:"required,notblank,max=128"`
	ContactInfo string `json:"contactInfo" validate:"required,phone"`
}

// Fields returns the form as cache fields.
func (f ProfileForm) Fields() models.CachedProfile {
	return models.CachedProfile{
		models.ProfileFieldFarmName:    f.FarmName,
		models.ProfileFieldLocation:    f.Location,
		models.ProfileFieldContactInfo: f.ContactInfo,
	}
}

// ProduceForm creates an inventory listing. Price is in human currency units.
type ProduceForm struct {
	Name        string `json:"name" validate:"required,notblank,max=128"`
	Category    string `json:"category" validate:"required"`
	Price       string `json:"price" validate:"required,amount"`
	Quantity    int64  `json:"quantity" validate:"min=0"`
	HarvestDate string `json:"harvestDate" validate:"omitempty,datetime=2006-01-02"`
	ImageRef    string `json:"imageHash" validate:"max=256"`
}

// SaleForm records a sale against one of the producer's listings.
type SaleForm struct {
	ProduceID  int64  `json:"produceId" validate:"min=0"`
	Quantity   int64  `json:"quantity" validate:"gt=0"`
	BuyerName  string `json:"buyerName" validate:"required,notblank,max=128"`
	BuyerPhone string `json:"buyerPhone" validate:"required,phone"`
	Price      string `json:"price" validate:"required,amount"`
}

// ValidationError lists the offending form fields and the rule each one broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name, rule := range e.Fields {
		names = append(names, name+"="+rule)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", errs.ErrValidationFailed, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return errs.ErrValidationFailed }

// formValidator checks forms before anything reaches the ledger.
type formValidator struct {
	validate *validator.Validate
	decimals int32
}

func newFormValidator(phoneRegion string, decimals int32) *formValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String(), phoneRegion)
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := normalize.ParseAmount(fl.Field().String(), decimals)
		return err == nil
	})
	return &formValidator{validate: v, decimals: decimals}
}

// ValidPhone reports whether number is a valid phone number, local to region
// unless it carries a country code.
func ValidPhone(number, region string) bool {
	p, err := libphonenumber.Parse(strings.TrimSpace(number), region)
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(p)
}

func (v *formValidator) check(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return &ValidationError{Fields: fields}
	}
	return fmt.Errorf("%w: %v", errs.ErrValidationFailed, err)
}

func (v *formValidator) produce(form ProduceForm) (models.NewInventoryItem, error) {
	if err := v.check(form); err != nil {
		return models.NewInventoryItem{}, err
	}
	price, err := v.price(form.Price)
	if err != nil {
		return models.NewInventoryItem{}, err
	}

	var harvest time.Time
	if form.HarvestDate != "" {
		harvest, _ = time.Parse(harvestDateLayout, form.HarvestDate)
	}
	return models.NewInventoryItem{
		Name:        strings.TrimSpace(form.Name),
		Category:    models.ParseCategory(form.Category),
		Price:       price,
		Quantity:    uint64(form.Quantity),
		HarvestDate: harvest,
		ImageRef:    form.ImageRef,
	}, nil
}

func (v *formValidator) sale(form SaleForm) (models.NewSale, error) {
	if err := v.check(form); err != nil {
		return models.NewSale{}, err
	}
	price, err := v.price(form.Price)
	if err != nil {
		return models.NewSale{}, err
	}
	return models.NewSale{
		ProduceIndex: uint64(form.ProduceID),
		Quantity:     uint64(form.Quantity),
		BuyerName:    strings.TrimSpace(form.BuyerName),
		BuyerPhone:   strings.TrimSpace(form.BuyerPhone),
		Price:        price,
	}, nil
}

func (v *formValidator) price(human string) (decimal.Decimal, error) {
	amount, err := normalize.ParseAmount(human, v.decimals)
	if err != nil {
		return decimal.Zero, &ValidationError{Fields: map[string]string{"price": "amount"}}
	}
	return amount, nil
}
