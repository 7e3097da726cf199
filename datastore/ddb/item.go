/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/suparena/embedstore/errors"
	"github.com/suparena/embedstore/query"
	"github.com/suparena/embedstore/schema"
)

// Attribute names reserved by the single-table layout.
const (
	attrPK         = "PK"
	attrSK         = "SK"
	attrEntityType = "EntityType"

	modelPrefix = "MODEL#"
)

func encodeOpts(o *attributevalue.EncoderOptions) {
	o.UseEncodingMarshalers = true
}

func decodeOpts(o *attributevalue.DecoderOptions) {
	o.UseEncodingUnmarshalers = true
}

// partitionKey is the PK shared by every item of a model.
func partitionKey(m *schema.Model) string {
	return modelPrefix + m.Table
}

// checkModel rejects models whose columns collide with the key attributes.
func checkModel(m *schema.Model) error {
	for _, f := range m.Fields {
		switch f.Column {
		case attrPK, attrSK, attrEntityType:
			return errors.NewValidationError(f.Column, fmt.Sprintf("%s uses an attribute name reserved by the DynamoDB engine", m.Name))
		}
	}
	return nil
}

// sortKey derives the SK of an entity from its primary key. Integer keys are
// zero padded so that SK order matches numeric order for non-negative keys.
// Models without a primary key get a time ordered UUID.
func sortKey(m *schema.Model, v reflect.Value) (string, error) {
	if m.PK == nil {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate sort key: %w", err)
		}
		return id.String(), nil
	}
	pk, _ := m.PrimaryKeyValue(v.Interface())
	switch n := query.Normalize(pk).(type) {
	case nil:
		return "", errors.NewValidationError(m.PK.Column, "primary key is nil")
	case int64:
		return fmt.Sprintf("%020d", n), nil
	case string:
		return n, nil
	default:
		return fmt.Sprint(n), nil
	}
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

// toItem marshals one entity, column by column, and injects the key and
// EntityType attributes. Nil fields are omitted.
func toItem(m *schema.Model, v reflect.Value) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(m.Fields)+3)
	for _, f := range m.Fields {
		fv := v.FieldByIndex(f.Index)
		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			continue
		}
		av, err := attributevalue.MarshalWithOptions(fv.Interface(), encodeOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s.%s: %w", m.Name, f.GoName, err)
		}
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			continue
		}
		item[f.Column] = av
	}

	sk, err := sortKey(m, v)
	if err != nil {
		return nil, err
	}
	item[attrPK] = &types.AttributeValueMemberS{Value: partitionKey(m)}
	item[attrSK] = &types.AttributeValueMemberS{Value: sk}
	item[attrEntityType] = &types.AttributeValueMemberS{Value: m.Name}
	return item, nil
}

// fromItem unmarshals item into a new value of the model type.
func fromItem(m *schema.Model, item map[string]types.AttributeValue) (reflect.Value, error) {
	if et, ok := item[attrEntityType].(*types.AttributeValueMemberS); ok && et.Value != m.Name {
		return reflect.Value{}, fmt.Errorf("item holds %s, not %s", et.Value, m.Name)
	}
	v := reflect.New(m.Type).Elem()
	for _, f := range m.Fields {
		av, ok := item[f.Column]
		if !ok {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if err := attributevalue.UnmarshalWithOptions(av, fv.Addr().Interface(), decodeOpts); err != nil {
			return reflect.Value{}, fmt.Errorf("failed to unmarshal %s.%s: %w", m.Name, f.GoName, err)
		}
	}
	return v, nil
}

func marshalValue(v any) (types.AttributeValue, error) {
	return attributevalue.MarshalWithOptions(query.Normalize(v), encodeOpts)
}
