package dynamo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// memDynamo is an in-memory DynamoDB good enough for the expressions this
// package writes: comparisons, IN, attribute_(not_)exists, AND/OR with
// parentheses, SET with literal values and ADD on numbers. Index queries scan
// the table for the hash key attribute.
type memDynamo struct {
	mu       sync.Mutex
	keys     map[string]string // table -> hash key attribute
	tables   map[string]map[string]item
	transact int
	// beforeCommit runs inside TransactWriteItems before conditions are checked.
	beforeCommit func(m *memDynamo)
	// deleteErr fails DeleteItem on the named table.
	deleteErr map[string]error
}

func newMemDynamo(keys map[string]string) *memDynamo {
	return &memDynamo{keys: keys, tables: map[string]map[string]item{}}
}

func (m *memDynamo) keyValue(table string, key item) (string, error) {
	attr, ok := m.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	s, ok := key[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing key %s for table %s", attr, table)
	}
	return s.Value, nil
}

func (m *memDynamo) lookup(table string, key item) (item, string, error) {
	k, err := m.keyValue(table, key)
	if err != nil {
		return nil, "", err
	}
	if m.tables[table] == nil {
		m.tables[table] = map[string]item{}
	}
	return m.tables[table][k], k, nil
}

// seed stores v as a raw item.
func (m *memDynamo) seed(table string, v any) {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, k, err := m.lookup(table, av)
	if err != nil {
		panic(err)
	}
	m.tables[table][k] = av
}

func (m *memDynamo) raw(table, key string) item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table][key]
}

func (m *memDynamo) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func (m *memDynamo) GetItem(_ context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, _, err := m.lookup(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: it}, nil
}

func (m *memDynamo) PutItem(_ context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, k, err := m.lookup(*in.TableName, in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCond(sdkaws.ToString(in.ConditionExpression), cur, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("condition failed")}
	}
	m.tables[*in.TableName][k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memDynamo) UpdateItem(_ context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &types.Update{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	}
	ok, err := m.checkUpdate(u)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("condition failed")}
	}
	updated, err := m.applyUpdate(u)
	if err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *memDynamo) DeleteItem(_ context.Context, in *dyn.DeleteItemInput, _ ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[*in.TableName]; err != nil {
		return nil, err
	}
	cur, k, err := m.lookup(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	ok, err := evalCond(sdkaws.ToString(in.ConditionExpression), cur, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: sdkaws.String("condition failed")}
	}
	delete(m.tables[*in.TableName], k)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *memDynamo) Query(_ context.Context, in *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &dyn.QueryOutput{}
	for _, it := range m.tables[*in.TableName] {
		ok, err := evalCond(sdkaws.ToString(in.KeyConditionExpression), it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if in.FilterExpression != nil {
			ok, err = evalCond(*in.FilterExpression, it, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out.Count++
		if in.Select != types.SelectCount {
			out.Items = append(out.Items, it)
		}
	}
	return out, nil
}

func (m *memDynamo) TransactWriteItems(_ context.Context, in *dyn.TransactWriteItemsInput, _ ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transact++
	if m.beforeCommit != nil {
		hook := m.beforeCommit
		m.beforeCommit = nil
		hook(m)
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, w := range in.TransactItems {
		reasons[i].Code = sdkaws.String("None")
		var ok bool
		var err error
		switch {
		case w.Put != nil:
			cur, _, lerr := m.lookup(*w.Put.TableName, w.Put.Item)
			if lerr != nil {
				return nil, lerr
			}
			ok, err = evalCond(sdkaws.ToString(w.Put.ConditionExpression), cur, w.Put.ExpressionAttributeNames, w.Put.ExpressionAttributeValues)
		case w.Update != nil:
			ok, err = m.checkUpdate(w.Update)
		default:
			return nil, errors.New("unsupported transact item")
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i].Code = sdkaws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range in.TransactItems {
		if w.Put != nil {
			_, k, _ := m.lookup(*w.Put.TableName, w.Put.Item)
			m.tables[*w.Put.TableName][k] = w.Put.Item
			continue
		}
		if _, err := m.applyUpdate(w.Update); err != nil {
			return nil, err
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (m *memDynamo) checkUpdate(u *types.Update) (bool, error) {
	cur, _, err := m.lookup(*u.TableName, u.Key)
	if err != nil {
		return false, err
	}
	return evalCond(sdkaws.ToString(u.ConditionExpression), cur, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
}

var clauseRe = regexp.MustCompile(`(?:^|\s)(SET|ADD)\s`)

func (m *memDynamo) applyUpdate(u *types.Update) (item, error) {
	cur, k, err := m.lookup(*u.TableName, u.Key)
	if err != nil {
		return nil, err
	}
	next := item{}
	for a, v := range cur {
		next[a] = v
	}
	for a, v := range u.Key {
		next[a] = v
	}
	expr := *u.UpdateExpression
	locs := clauseRe.FindAllStringSubmatchIndex(expr, -1)
	for i, loc := range locs {
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		verb := expr[loc[2]:loc[3]]
		body := strings.TrimSpace(expr[loc[1]:end])
		for _, part := range splitTop(body, ",") {
			part = strings.TrimSpace(part)
			switch verb {
			case "SET":
				lhs, rhs, ok := strings.Cut(part, "=")
				if !ok {
					return nil, fmt.Errorf("bad SET clause %q", part)
				}
				v, err := operand(strings.TrimSpace(rhs), next, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				next[attrName(strings.TrimSpace(lhs), u.ExpressionAttributeNames)] = v
			case "ADD":
				fields := strings.Fields(part)
				if len(fields) != 2 {
					return nil, fmt.Errorf("bad ADD clause %q", part)
				}
				name := attrName(fields[0], u.ExpressionAttributeNames)
				delta := num(u.ExpressionAttributeValues[fields[1]])
				next[name] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(num(next[name])+delta, 'f', -1, 64)}
			}
		}
	}
	m.tables[*u.TableName][k] = next
	return next, nil
}

func attrName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		return names[tok]
	}
	return tok
}

// operand resolves a value reference, an attribute, or "a + :v" / "a - :v".
func operand(tok string, it item, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	for _, op := range []string{" + ", " - "} {
		if l, r, ok := strings.Cut(tok, op); ok {
			lv, err := operand(l, it, names, values)
			if err != nil {
				return nil, err
			}
			rv, err := operand(r, it, names, values)
			if err != nil {
				return nil, err
			}
			res := num(lv) + num(rv)
			if op == " - " {
				res = num(lv) - num(rv)
			}
			return &types.AttributeValueMemberN{Value: strconv.FormatFloat(res, 'f', -1, 64)}, nil
		}
	}
	if strings.HasPrefix(tok, ":") {
		v, ok := values[tok]
		if !ok {
			return nil, fmt.Errorf("missing value %s", tok)
		}
		return v, nil
	}
	return it[attrName(tok, names)], nil
}

func num(v types.AttributeValue) float64 {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(n.Value, 64)
	return f
}

// splitTop splits s on sep outside parentheses.
func splitTop(s, sep string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, s[start:])
}

var (
	funcRe = regexp.MustCompile(`^(attribute_exists|attribute_not_exists)\((\S+)\)$`)
	inRe   = regexp.MustCompile(`^(\S+) IN \((.+)\)$`)
	cmpRe  = regexp.MustCompile(`^(\S+) (=|<>|>=|<=|>|<) (\S+)$`)
)

func evalCond(expr string, it item, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	if ors := splitTop(expr, " OR "); len(ors) > 1 {
		for _, o := range ors {
			ok, err := evalCond(o, it, names, values)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if ands := splitTop(expr, " AND "); len(ands) > 1 {
		for _, a := range ands {
			ok, err := evalCond(a, it, names, values)
			if err != nil || !ok {
				return ok, err
			}
		}
		return true, nil
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		return evalCond(expr[1:len(expr)-1], it, names, values)
	}
	if mm := funcRe.FindStringSubmatch(expr); mm != nil {
		_, exists := it[attrName(mm[2], names)]
		return exists == (mm[1] == "attribute_exists"), nil
	}
	if mm := inRe.FindStringSubmatch(expr); mm != nil {
		lv, err := operand(mm[1], it, names, values)
		if err != nil {
			return false, err
		}
		for _, tok := range strings.Split(mm[2], ",") {
			rv, err := operand(strings.TrimSpace(tok), it, names, values)
			if err != nil {
				return false, err
			}
			if c, ok := compare(lv, rv); ok && c == 0 {
				return true, nil
			}
		}
		return false, nil
	}
	if mm := cmpRe.FindStringSubmatch(expr); mm != nil {
		lv, err := operand(mm[1], it, names, values)
		if err != nil {
			return false, err
		}
		rv, err := operand(mm[3], it, names, values)
		if err != nil {
			return false, err
		}
		c, ok := compare(lv, rv)
		if !ok {
			return false, nil
		}
		switch mm[2] {
		case "=":
			return c == 0, nil
		case "<>":
			return c != 0, nil
		case ">=":
			return c >= 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c < 0, nil
		}
	}
	return false, fmt.Errorf("unsupported expression %q", expr)
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		if _, ok := b.(*types.AttributeValueMemberN); !ok {
			return 0, false
		}
		x, y := num(av), num(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	}
	return 0, false
}
